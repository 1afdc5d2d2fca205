package trace

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const maxLineSize = 1 << 20

// Parser turns the line-oriented trace format into an event log, interning
// class and method names through its Pool.
type Parser struct {
	pool *Pool
}

// NewParser returns a parser that interns into pool. A nil pool gets a fresh one.
func NewParser(pool *Pool) *Parser {
	if pool == nil {
		pool = NewPool()
	}
	return &Parser{pool: pool}
}

// Pool returns the parser's constant pool.
func (p *Parser) Pool() *Pool {
	return p.pool
}

// Parse reads a whole trace using a fresh constant pool.
func Parse(r io.Reader) (*Log, error) {
	return NewParser(nil).Parse(r)
}

// Parse reads one record per line. Blank lines are skipped; any other line
// that does not parse fails the whole read with a *FormatError.
func (p *Parser) Parse(r io.Reader) (*Log, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	log := &Log{}
	var (
		sawInit, sawDeath bool
		lastTime          int64
		lineNo            int
	)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		ev, err := p.parseLine(line)
		if err != nil {
			err.Line = lineNo
			err.Content = line
			return nil, err
		}
		ev.Line = lineNo

		if len(log.Events) > 0 && ev.Time < lastTime {
			return nil, &FormatError{
				Line:    lineNo,
				Content: line,
				Reason:  "timestamp " + strconv.FormatInt(ev.Time, 10) + " precedes " + strconv.FormatInt(lastTime, 10),
			}
		}
		lastTime = ev.Time

		switch ev.Kind {
		case KindVMInit:
			sawInit = true
			log.Start = ev.Time
			log.End = ev.Time
		case KindVMDeath:
			sawDeath = true
			log.End = ev.Time
		}

		log.Events = append(log.Events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading trace at line %d", lineNo+1)
	}

	if n := len(log.Events); n > 0 {
		if !sawInit {
			log.Start = log.Events[0].Time
		}
		if !sawDeath {
			log.End = log.Events[n-1].Time
		}
	}

	return log, nil
}

func (p *Parser) parseLine(line string) (Event, *FormatError) {
	fields := strings.Split(line, ":")

	kind, ok := kindByTag[fields[0]]
	if !ok {
		return Event{}, &FormatError{Reason: "unknown record tag " + strconv.Quote(fields[0])}
	}
	if want := kindInfo[kind].fields; len(fields) != want {
		return Event{}, &FormatError{
			Reason: kind.String() + " record needs " + strconv.Itoa(want) + " fields, got " + strconv.Itoa(len(fields)),
		}
	}

	ev := Event{Kind: kind}
	var ferr *FormatError
	ev.Time, ferr = parseInt(fields[1], "timestamp")
	if ferr != nil {
		return Event{}, ferr
	}

	switch kind {
	case KindThreadStart, KindThreadEnd:
		ev.Thread, ferr = parseInt(fields[2], "thread id")
	case KindClassLoad:
		ev.Class, ferr = p.className(fields[2])
	case KindMethodEntry:
		if ev.Thread, ferr = parseInt(fields[2], "thread id"); ferr != nil {
			break
		}
		if ev.Class, ferr = p.className(fields[3]); ferr != nil {
			break
		}
		if ev.Method, ferr = p.methodName(fields[4]); ferr != nil {
			break
		}
		ev.Object, ferr = parseInt(fields[5], "object id")
	case KindMethodExit, KindFramePop:
		if ev.Thread, ferr = parseInt(fields[2], "thread id"); ferr != nil {
			break
		}
		if ev.Class, ferr = p.className(fields[3]); ferr != nil {
			break
		}
		ev.Method, ferr = p.methodName(fields[4])
	case KindObjectAlloc, KindObjectFree:
		if ev.Class, ferr = p.className(fields[2]); ferr != nil {
			break
		}
		ev.Object, ferr = parseInt(fields[3], "object id")
	}
	if ferr != nil {
		return Event{}, ferr
	}

	return ev, nil
}

// className converts a '/' separated JVM class name to dotted form.
func (p *Parser) className(s string) (string, *FormatError) {
	if s == "" {
		return "", &FormatError{Reason: "empty class name"}
	}
	return p.pool.Intern(strings.ReplaceAll(s, "/", ".")), nil
}

func (p *Parser) methodName(s string) (string, *FormatError) {
	if s == "" {
		return "", &FormatError{Reason: "empty method name"}
	}
	return p.pool.Intern(s), nil
}

func parseInt(s, what string) (int64, *FormatError) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &FormatError{Reason: "invalid " + what + " " + strconv.Quote(s)}
	}
	return v, nil
}
