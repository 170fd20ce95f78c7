package command

import (
	"strings"
	"time"

	"avisobot/internal/reminder"
)

// Intent is the classified meaning of one inbound line. Concrete variants
// carry everything the apply stage needs, already validated.
type Intent interface{ intent() }

type ShowMenu struct{}
type ListExams struct{}
type SetDefaults struct{ Offsets reminder.NoticeSet }
type ToggleDefaults struct{ Enable bool }
type SetCourseOverride struct {
	Course  string
	Offsets reminder.NoticeSet
}
type AddExam struct {
	Course  string
	Date    time.Time
	Offsets reminder.NoticeSet // empty: no override, precedence decides
}
type ChangeDate struct {
	Course string
	Date   time.Time
}
type DeleteExam struct{ Course string }
type Unknown struct{}

func (ShowMenu) intent()          {}
func (ListExams) intent()         {}
func (SetDefaults) intent()       {}
func (ToggleDefaults) intent()    {}
func (SetCourseOverride) intent() {}
func (AddExam) intent()           {}
func (ChangeDate) intent()        {}
func (DeleteExam) intent()        {}
func (Unknown) intent()           {}

// ReplyError is a user-facing parse/validation failure. Its text goes back
// as the chat reply; nothing has been mutated.
type ReplyError struct{ Text string }

func (e *ReplyError) Error() string { return e.Text }

// Parse tokenizes and classifies one line. Keywords match case-insensitively
// (Spanish surface, accented SÍ accepted); course tokens keep their original
// casing. Parse never touches storage.
func Parse(line string, lim reminder.Limits) (Intent, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Unknown{}, nil
	}
	upper := make([]string, len(fields))
	for i, f := range fields {
		upper[i] = strings.ToUpper(f)
	}

	switch upper[0] {
	case "MENU", "AYUDA", "HELP":
		return ShowMenu{}, nil
	}

	two := upper[0]
	if len(upper) > 1 {
		two = upper[0] + " " + upper[1]
	}

	switch two {
	case "MIS EXAMENES":
		return ListExams{}, nil

	case "SET GLOBALES":
		// Lenient parse: garbage tokens are dropped, empty falls back to the
		// default sequence. Never a validation failure.
		return SetDefaults{Offsets: lim.Normalize(fields[2:])}, nil

	case "USAR GLOBALES":
		switch upper[len(upper)-1] {
		case "SI", "SÍ", "YES":
			return ToggleDefaults{Enable: true}, nil
		case "NO", "N":
			return ToggleDefaults{Enable: false}, nil
		default:
			return nil, &ReplyError{Text: "Escribe: *USAR GLOBALES SI* o *USAR GLOBALES NO*."}
		}

	case "SET CURSO":
		course, digits := partitionDigits(fields[2:])
		if course == "" {
			return nil, &ReplyError{Text: "Formato: SET CURSO <curso> 20 10 5"}
		}
		return SetCourseOverride{Course: course, Offsets: lim.Normalize(digits)}, nil

	case "AGREGAR EXAMEN":
		rest := fields[2:]
		if len(rest) < 2 {
			return nil, &ReplyError{Text: "Formato: AGREGAR EXAMEN <curso> <YYYY-MM-DD> [avisos...]"}
		}
		dateIdx := -1
		for i, t := range rest {
			if isDateShaped(t) {
				dateIdx = i
				break
			}
		}
		if dateIdx < 0 {
			return nil, &ReplyError{Text: "Falta la fecha. Usa formato: YYYY-MM-DD"}
		}
		date, err := reminder.ParseDate(rest[dateIdx])
		if err != nil {
			return nil, &ReplyError{Text: "Fecha inválida. Usa el formato YYYY-MM-DD."}
		}
		course := strings.Join(rest[:dateIdx], " ")
		if course == "" {
			return nil, &ReplyError{Text: "Formato: AGREGAR EXAMEN <curso> <YYYY-MM-DD> [avisos...]"}
		}
		var offsets reminder.NoticeSet
		if after := rest[dateIdx+1:]; len(after) > 0 {
			offsets = lim.Normalize(after)
		}
		return AddExam{Course: course, Date: date, Offsets: offsets}, nil

	case "CAMBIAR FECHA":
		rest := fields[2:]
		if len(rest) < 2 {
			return nil, &ReplyError{Text: "Formato: CAMBIAR FECHA <curso> <YYYY-MM-DD>"}
		}
		last := rest[len(rest)-1]
		if !isDateShaped(last) {
			return nil, &ReplyError{Text: "Falta la fecha. Usa formato: YYYY-MM-DD"}
		}
		date, err := reminder.ParseDate(last)
		if err != nil {
			return nil, &ReplyError{Text: "Fecha inválida. Usa el formato YYYY-MM-DD."}
		}
		return ChangeDate{Course: strings.Join(rest[:len(rest)-1], " "), Date: date}, nil

	case "ELIMINAR EXAMEN":
		return DeleteExam{Course: strings.Join(fields[2:], " ")}, nil
	}

	return Unknown{}, nil
}

// partitionDigits splits tokens lexically: a token made entirely of decimal
// digits is an offset candidate, everything else joins (in order) into the
// course name. A purely numeric course name is therefore misparsed; the rule
// is deliberate and documented, not silently corrected.
func partitionDigits(tokens []string) (course string, digits []string) {
	var name []string
	for _, t := range tokens {
		if isAllDigits(t) {
			digits = append(digits, t)
		} else {
			name = append(name, t)
		}
	}
	return strings.Join(name, " "), digits
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isDateShaped matches the literal YYYY-MM-DD token shape.
func isDateShaped(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, c := range []byte(s) {
		if i == 4 || i == 7 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
