package command

import (
	"fmt"
	"strings"

	"avisobot/internal/reminder"
)

const (
	replyWelcome   = "¡Hola! Te acabo de registrar. Escribe *MENU* para ver las opciones. 📲"
	replyEmpty     = "Envía *MENU* para ver tus opciones."
	replyUnknown   = "No entendí tu mensaje. Escribe *MENU* para ver las opciones."
	replyInternal  = "⚠️ Ocurrió un error interno. Intenta de nuevo en unos minutos."
	replyUseOn     = "✅ Activado: se usarán tus avisos globales."
	replyUseOff    = "✅ Desactivado: cada curso tendrá sus propios avisos."
	replyNoExams   = "No tienes exámenes registrados."
	replyMenuTitle = "📚 *Menú de configuración*"
)

func helpText() string {
	return replyMenuTitle + "\n\n" +
		"• *MENU* → ver este menú\n" +
		"• *MIS EXAMENES* → lista tus exámenes\n" +
		"• *SET GLOBALES 30 20 10 5* → define avisos globales (5–30 días, máx 4)\n" +
		"• *USAR GLOBALES SI* o *USAR GLOBALES NO*\n" +
		"• *SET CURSO <curso> 20 10 5* → avisos solo para ese curso\n" +
		"• *AGREGAR EXAMEN <curso> <YYYY-MM-DD> [avisos...]*\n" +
		"• *CAMBIAR FECHA <curso> <YYYY-MM-DD>*\n" +
		"• *ELIMINAR EXAMEN <curso>*\n"
}

func renderExamList(st *reminder.Student, lim reminder.Limits) string {
	if len(st.Exams) == 0 {
		return "🗓 *Tus exámenes:*\n" + replyNoExams
	}
	var b strings.Builder
	b.WriteString("🗓 *Tus exámenes:*")
	for _, ex := range st.Exams {
		set, src := reminder.Resolve(*st, ex, lim)
		var notices string
		switch src {
		case reminder.SourceOverride:
			notices = set.String()
		case reminder.SourceDefaults:
			notices = fmt.Sprintf("(usa globales: %s)", set)
		default:
			notices = fmt.Sprintf("(por defecto: %s)", set)
		}
		fmt.Fprintf(&b, "\n- %s: %s | avisos: %s", ex.Course, ex.Date.Format(reminder.DateLayout), notices)
	}
	return b.String()
}

func courseNotFound(course string) string {
	return fmt.Sprintf("❌ No encontré el curso '%s'.", course)
}
