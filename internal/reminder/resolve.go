package reminder

// NoticeSource says which precedence tier produced a resolved notice-set.
type NoticeSource int

const (
	SourceOverride NoticeSource = iota // per-exam override
	SourceDefaults                     // student-wide defaults
	SourceFallback                     // fixed default sequence
)

// Resolve returns the notice-set that applies to one (student, exam) pair.
//
// Three tiers, no exceptions: exam override if non-empty, else the student's
// defaults when UseDefaults is set, else the fixed default sequence. Both the
// dispatch loop and the "MIS EXAMENES" listing go through here.
func Resolve(st Student, ex Exam, lim Limits) (NoticeSet, NoticeSource) {
	if len(ex.Notices) > 0 {
		return lim.Canonical(ex.Notices), SourceOverride
	}
	if st.UseDefaults && len(st.Defaults) > 0 {
		return lim.Canonical(st.Defaults), SourceDefaults
	}
	return append(NoticeSet(nil), lim.Default...), SourceFallback
}
