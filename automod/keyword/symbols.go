package keyword

import (
	"unicode"
)

// More than this many pictographic code points in one message is symbol spam.
const SymbolLimit = 10

// Emoji and pictographic symbol blocks counted towards SymbolLimit. Text scripts (CJK, Hangul, box drawing) are never counted.
var Pictographic = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x24c2, Hi: 0x24ff, Stride: 1},
		// geometric shapes, misc symbols, dingbats
		{Lo: 0x25a0, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		// misc symbols and arrows
		{Lo: 0x2b00, Hi: 0x2bff, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303d, Hi: 0x303d, Stride: 1},
		{Lo: 0x3297, Hi: 0x3299, Stride: 2},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1f251, Stride: 1},
		{Lo: 0x1f300, Hi: 0x1f64f, Stride: 1},
		// skips ornamental dingbats
		{Lo: 0x1f680, Hi: 0x1f8ff, Stride: 1},
		{Lo: 0x1f900, Hi: 0x1faff, Stride: 1},
	},
}

// Number of code points in the text which fall in the Pictographic table.
func CountSymbols(text string) int {
	n := 0
	for _, r := range text {
		if unicode.Is(Pictographic, r) {
			n++
		}
	}
	return n
}
