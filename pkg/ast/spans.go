package ast

// SetSpan annotates the expression with the provided span.
func SetSpan(expr Expression, span Span) {
	if expr == nil {
		return
	}
	if setter, ok := expr.(interface{ setSpan(Span) }); ok {
		setter.setSpan(span)
	}
}

// ZeroSpan returns an empty span value.
func ZeroSpan() Span {
	return Span{}
}

// Line returns the first line covered by the expression, or zero when unknown.
func Line(expr Expression) int {
	if expr == nil {
		return 0
	}
	return expr.Span().Start.Line
}

// CopySpans applies span metadata from src onto the structurally matching nodes of
// dst. Mismatched shapes are ignored.
func CopySpans(dst, src Expression) {
	if dst == nil || src == nil {
		return
	}
	if span := src.Span(); span != (Span{}) {
		SetSpan(dst, span)
	}
	dstSeq, ok := dst.(*Sequence)
	if !ok {
		return
	}
	srcSeq, ok := src.(*Sequence)
	if !ok {
		return
	}
	n := len(dstSeq.Elements)
	if other := len(srcSeq.Elements); other < n {
		n = other
	}
	for i := 0; i < n; i++ {
		CopySpans(dstSeq.Elements[i], srcSeq.Elements[i])
	}
}
