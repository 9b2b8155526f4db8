package convert

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Line is one line of text shown on a page, with the largest font size
// used on it.
type Line struct {
	Text string
	Size float64
}

// spaceGap is the TJ displacement, in thousandths of an em, read as a word
// break.
const spaceGap = -200

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokName
	tokOperator
	tokArrayStart
	tokArrayEnd
	tokOther
)

type token struct {
	kind tokenKind
	text string
	num  float64
	str  []byte
}

// ExtractLines reads the text showing operators of a decoded page content
// stream. Glyphs are mapped through UTF-16 (with BOM) or Windows-1252, so
// fonts with custom encodings come out garbled.
func ExtractLines(content []byte) []Line {
	x := &textState{scale: 1}
	var operands []token
	var array []token
	inArray := false

	lex := &lexer{src: content}
	for {
		tok, ok := lex.next()
		if !ok {
			break
		}
		switch tok.kind {
		case tokArrayStart:
			inArray, array = true, nil
		case tokArrayEnd:
			inArray = false
			operands = append(operands, token{kind: tokOther, text: "array"})
		case tokOperator:
			if tok.text == "BI" {
				lex.skipInlineImage()
				operands = nil
				continue
			}
			x.apply(tok.text, operands, array)
			operands, array = nil, nil
		default:
			if inArray {
				array = append(array, tok)
			} else {
				operands = append(operands, tok)
			}
		}
	}
	x.breakLine()
	return x.lines
}

type textState struct {
	fontSize float64
	scale    float64
	lastY    float64
	hasY     bool

	current strings.Builder
	size    float64
	lines   []Line
}

func (x *textState) apply(op string, operands, array []token) {
	switch op {
	case "Tf":
		if n, ok := lastNumber(operands); ok {
			x.fontSize = n
		}
	case "Tm":
		if len(operands) == 6 {
			x.scale = math.Abs(operands[3].num)
			if x.scale == 0 {
				x.scale = 1
			}
			y := operands[5].num
			if x.hasY && y != x.lastY {
				x.breakLine()
			} else if x.hasY {
				x.space()
			}
			x.lastY, x.hasY = y, true
		}
	case "Td", "TD":
		if len(operands) == 2 {
			if operands[1].num != 0 {
				x.breakLine()
			} else if operands[0].num != 0 {
				x.space()
			}
		}
	case "T*":
		x.breakLine()
	case "ET":
		x.breakLine()
		x.hasY = false
	case "Tj":
		if s, ok := lastString(operands); ok {
			x.show(s)
		}
	case "'", `"`:
		x.breakLine()
		if s, ok := lastString(operands); ok {
			x.show(s)
		}
	case "TJ":
		for _, t := range array {
			switch t.kind {
			case tokString:
				x.show(t.str)
			case tokNumber:
				if t.num <= spaceGap {
					x.space()
				}
			}
		}
	}
}

func (x *textState) show(raw []byte) {
	text := decodeText(raw)
	if text == "" {
		return
	}
	x.current.WriteString(text)
	if size := x.fontSize * x.scale; size > x.size {
		x.size = size
	}
}

func (x *textState) space() {
	s := x.current.String()
	if s != "" && !strings.HasSuffix(s, " ") {
		x.current.WriteByte(' ')
	}
}

func (x *textState) breakLine() {
	text := strings.Join(strings.Fields(x.current.String()), " ")
	if text != "" {
		x.lines = append(x.lines, Line{Text: text, Size: x.size})
	}
	x.current.Reset()
	x.size = 0
}

func lastNumber(operands []token) (float64, bool) {
	if len(operands) == 0 || operands[len(operands)-1].kind != tokNumber {
		return 0, false
	}
	return operands[len(operands)-1].num, true
}

func lastString(operands []token) ([]byte, bool) {
	if len(operands) == 0 || operands[len(operands)-1].kind != tokString {
		return nil, false
	}
	return operands[len(operands)-1].str, true
}

var utf16BOM = []byte{0xfe, 0xff}

func decodeText(raw []byte) string {
	var (
		out []byte
		err error
	)
	if bytes.HasPrefix(raw, utf16BOM) {
		out, err = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(raw)
	} else {
		out, err = charmap.Windows1252.NewDecoder().Bytes(raw)
	}
	if err != nil {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 {
			return ' '
		}
		return r
	}, string(out))
}

type lexer struct {
	src []byte
	pos int
}

func isWhite(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) next() (token, bool) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isWhite(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' && l.src[l.pos] != '\r' {
				l.pos++
			}
		case c == '(':
			l.pos++
			return token{kind: tokString, str: l.literal()}, true
		case c == '<':
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == '<' {
				l.pos += 2
				return token{kind: tokOther, text: "<<"}, true
			}
			l.pos++
			return token{kind: tokString, str: l.hex()}, true
		case c == '>':
			l.pos++
			if l.pos < len(l.src) && l.src[l.pos] == '>' {
				l.pos++
			}
			return token{kind: tokOther, text: ">>"}, true
		case c == '[':
			l.pos++
			return token{kind: tokArrayStart}, true
		case c == ']':
			l.pos++
			return token{kind: tokArrayEnd}, true
		case c == '/':
			l.pos++
			return token{kind: tokName, text: l.word()}, true
		case c == ')' || c == '{' || c == '}':
			l.pos++
		default:
			w := l.word()
			if n, err := strconv.ParseFloat(w, 64); err == nil {
				return token{kind: tokNumber, text: w, num: n}, true
			}
			return token{kind: tokOperator, text: w}, true
		}
	}
	return token{}, false
}

func (l *lexer) word() string {
	start := l.pos
	for l.pos < len(l.src) && !isWhite(l.src[l.pos]) && !isDelim(l.src[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		l.pos++
	}
	return string(l.src[start:l.pos])
}

func (l *lexer) literal() []byte {
	var out []byte
	depth := 1
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return out
			}
		case '\\':
			if l.pos >= len(l.src) {
				return out
			}
			e := l.src[l.pos]
			l.pos++
			switch e {
			case 'n':
				c = '\n'
			case 'r':
				c = '\r'
			case 't':
				c = '\t'
			case 'b':
				c = '\b'
			case 'f':
				c = '\f'
			case '\r':
				if l.pos < len(l.src) && l.src[l.pos] == '\n' {
					l.pos++
				}
				continue
			case '\n':
				continue
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '7'; i++ {
						v = v*8 + int(l.src[l.pos]-'0')
						l.pos++
					}
					c = byte(v)
				} else {
					c = e
				}
			}
		}
		out = append(out, c)
	}
	return out
}

func (l *lexer) hex() []byte {
	var digits []byte
	for l.pos < len(l.src) && l.src[l.pos] != '>' {
		if c := l.src[l.pos]; !isWhite(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			return nil
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage moves past the binary data of a BI ... ID ... EI block.
func (l *lexer) skipInlineImage() {
	id := bytes.Index(l.src[l.pos:], []byte("ID"))
	if id < 0 {
		l.pos = len(l.src)
		return
	}
	l.pos += id + 2
	for l.pos < len(l.src) {
		ei := bytes.Index(l.src[l.pos:], []byte("EI"))
		if ei < 0 {
			l.pos = len(l.src)
			return
		}
		at := l.pos + ei
		l.pos = at + 2
		if at > 0 && isWhite(l.src[at-1]) && (l.pos >= len(l.src) || isWhite(l.src[l.pos])) {
			return
		}
	}
}
