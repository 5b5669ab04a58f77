package terminal

import (
	"strconv"
	"strings"
)

// OSC is an operating system command sequence.
type OSC struct {
	Code int
	Data string
}

// Token is either a run of plain output or one OSC sequence.
type Token struct {
	Text string
	OSC  *OSC
}

type scanState int

const (
	stateGround scanState = iota
	stateEscape
	stateOSC
	stateOSCEscape
)

// Scanner splits terminal output into text and OSC sequences. It keeps
// state between calls so sequences may span reads. Other escape
// sequences are returned as text.
type Scanner struct {
	state scanState
	osc   []byte
}

// maxOSC bounds an unterminated sequence; longer ones are flushed as text.
const maxOSC = 64 << 10

// Scan consumes data and returns its tokens in order.
func (s *Scanner) Scan(data []byte) []Token {
	var (
		out  []Token
		text []byte
	)
	flush := func() {
		if len(text) > 0 {
			out = append(out, Token{Text: string(text)})
			text = text[:0]
		}
	}
	emit := func() {
		flush()
		if seq, ok := parseOSC(s.osc); ok {
			out = append(out, Token{OSC: &seq})
		}
		s.osc = s.osc[:0]
	}

	for _, b := range data {
		switch s.state {
		case stateGround:
			if b == 0x1B {
				s.state = stateEscape
				continue
			}
			text = append(text, b)
		case stateEscape:
			if b == ']' {
				s.state = stateOSC
				continue
			}
			text = append(text, 0x1B, b)
			s.state = stateGround
		case stateOSC:
			switch b {
			case 0x07, 0x9C:
				emit()
				s.state = stateGround
			case 0x1B:
				s.state = stateOSCEscape
			default:
				s.osc = append(s.osc, b)
				if len(s.osc) > maxOSC {
					text = append(text, "\x1b]"...)
					text = append(text, s.osc...)
					s.osc = s.osc[:0]
					s.state = stateGround
				}
			}
		case stateOSCEscape:
			emit()
			if b == '\\' {
				s.state = stateGround
				continue
			}
			// ESC ended the sequence and starts another escape.
			switch b {
			case ']':
				s.state = stateOSC
				continue
			case 0x1B:
				s.state = stateEscape
				continue
			}
			text = append(text, 0x1B, b)
			s.state = stateGround
		}
	}
	flush()
	return out
}

func parseOSC(raw []byte) (OSC, bool) {
	code, data, _ := strings.Cut(string(raw), ";")
	n, err := strconv.Atoi(code)
	if err != nil {
		return OSC{}, false
	}
	return OSC{Code: n, Data: data}, true
}

// unescapeValue decodes the escaping used in OSC 633 values: `\\` for a
// backslash and `\xAB` for an arbitrary byte.
func unescapeValue(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		switch {
		case s[i+1] == '\\':
			b.WriteByte('\\')
			i++
		case s[i+1] == 'x' && i+3 < len(s):
			if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
