package genx

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// ThinkSplitter separates inline <think>...</think> sections from streamed
// model text. Tags may be split across chunks.
type ThinkSplitter struct {
	pending string
	inThink bool
}

// Feed consumes the next text delta and returns the parts that are complete.
// Text inside think tags is returned as Thought, the rest as Text.
func (s *ThinkSplitter) Feed(delta string) []Part {
	s.pending += delta
	var out []Part
	for {
		tag := thinkOpen
		if s.inThink {
			tag = thinkClose
		}
		if i := strings.Index(s.pending, tag); i >= 0 {
			out = s.emit(out, s.pending[:i])
			s.pending = s.pending[i+len(tag):]
			s.inThink = !s.inThink
			continue
		}
		keep := partialSuffix(s.pending, tag)
		out = s.emit(out, s.pending[:len(s.pending)-keep])
		s.pending = s.pending[len(s.pending)-keep:]
		return out
	}
}

// Flush returns whatever is buffered, including an unterminated tag prefix.
func (s *ThinkSplitter) Flush() []Part {
	rest := s.pending
	s.pending = ""
	return s.emit(nil, rest)
}

func (s *ThinkSplitter) emit(out []Part, text string) []Part {
	if text == "" {
		return out
	}
	if s.inThink {
		return append(out, Thought(text))
	}
	return append(out, Text(text))
}

// partialSuffix returns the length of the longest suffix of s that is a
// proper prefix of tag.
func partialSuffix(s, tag string) int {
	for n := min(len(s), len(tag)-1); n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
