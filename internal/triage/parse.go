// internal/triage/parse.go
package triage

import (
	"bufio"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNotStackTrace is returned when failure detail text does not start with an
// exception header.
var ErrNotStackTrace = errors.New("failure detail is not a stack trace")

// Frame is one "at ..." line of a stack trace.
type Frame struct {
	// Method is the fully qualified method, e.g. "com.acme.Cart.total".
	Method string
	// File is the source file name reported by the JVM, if any.
	File string
	// Line is the source line, or 0 when the JVM did not report one.
	Line int
}

// DeclaringType returns the qualified type that declares the frame's method.
func (f Frame) DeclaringType() string {
	idx := strings.LastIndex(f.Method, ".")
	if idx <= 0 {
		return ""
	}
	return f.Method[:idx]
}

// Trace is one link of a causation chain.
type Trace struct {
	ExceptionType string
	Message       string
	Frames        []Frame
	CausedBy      *Trace
}

// Root follows CausedBy links to the innermost cause. A cyclic chain stops at
// the last link not yet visited.
func (t *Trace) Root() *Trace {
	visited := map[*Trace]bool{t: true}
	current := t
	for current.CausedBy != nil && !visited[current.CausedBy] {
		current = current.CausedBy
		visited[current] = true
	}
	return current
}

var (
	// headerRegex matches "java.lang.NullPointerException: message" and
	// "Caused by: ..." lines.
	headerRegex = regexp.MustCompile(`^(?:Caused by: )?([\w$]+(?:\.[\w$]+)*)(?::\s?(.*))?$`)
	// frameRegex matches "at pkg.Type.method(Location)" with an optional
	// "module@version/" or "loader//" prefix.
	frameRegex = regexp.MustCompile(`^at (?:[^\s/(]*/){0,2}([\w$<>.-]+)\((.*)\)$`)
	// elisionRegex matches the "... 12 more" line that closes a cause.
	elisionRegex = regexp.MustCompile(`^\.\.\. \d+ (?:more|common frames omitted)$`)
)

// Parse reads JVM stack trace text into a causation chain. Suppressed blocks are
// skipped. Lines that are neither headers nor frames are folded into the
// current message, which is how the JVM prints multi-line messages.
func Parse(detail string) (*Trace, error) {
	scanner := bufio.NewScanner(strings.NewReader(detail))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		head       *Trace
		current    *Trace
		suppressed bool
		suppressAt int
	)

	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		indent := len(raw) - len(strings.TrimLeft(raw, " \t"))

		if head == nil {
			m := headerRegex.FindStringSubmatch(line)
			if m == nil || strings.HasPrefix(line, "at ") {
				return nil, ErrNotStackTrace
			}
			head = &Trace{ExceptionType: m[1], Message: m[2]}
			current = head
			continue
		}

		if suppressed {
			// A suppressed block ends when indentation returns to its own level
			// or less, on anything that is not a nested frame.
			if indent > suppressAt {
				continue
			}
			suppressed = false
		}

		switch {
		case strings.HasPrefix(line, "Suppressed: "):
			suppressed = true
			suppressAt = indent
		case strings.HasPrefix(line, "Caused by: "):
			m := headerRegex.FindStringSubmatch(line)
			if m == nil {
				return nil, ErrNotStackTrace
			}
			next := &Trace{ExceptionType: m[1], Message: m[2]}
			current.CausedBy = next
			current = next
		case strings.HasPrefix(line, "at "):
			frame, ok := parseFrame(line)
			if ok {
				current.Frames = append(current.Frames, frame)
			}
		case elisionRegex.MatchString(line):
		default:
			if len(current.Frames) == 0 {
				if current.Message != "" {
					current.Message += "\n"
				}
				current.Message += line
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if head == nil {
		return nil, ErrNotStackTrace
	}
	return head, nil
}

func parseFrame(line string) (Frame, bool) {
	m := frameRegex.FindStringSubmatch(line)
	if m == nil {
		return Frame{}, false
	}
	frame := Frame{Method: m[1]}
	location := m[2]
	if location == "Native Method" || location == "Unknown Source" {
		return frame, true
	}
	file, lineNo, found := strings.Cut(location, ":")
	frame.File = file
	if found {
		if n, err := strconv.Atoi(lineNo); err == nil {
			frame.Line = n
		}
	}
	return frame, true
}
