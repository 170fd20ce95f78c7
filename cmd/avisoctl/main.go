// avisoctl is the operator CLI: one-shot dispatch runs (with an injected
// date for simulations), student/exam registration and the same
// configuration mutations the chat surface exposes, plus a few that are
// CLI-only (rename, copy-to-all).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"avisobot/internal/config"
	"avisobot/internal/reminder"
	"avisobot/internal/storage"
	"avisobot/internal/transport"
	"avisobot/internal/transport/dryrun"
	"avisobot/internal/transport/twilio"
	"avisobot/pkg/logx"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	if err := dispatch(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `uso: avisoctl <comando> [flags]

comandos:
  run            ejecuta el despacho de recordatorios una vez
  list           lista estudiantes y su configuración
  adduser        registra un estudiante con sus exámenes
  set-globales   define los avisos globales de un estudiante
  set-curso      define avisos para un curso específico
  copiar-a-todos copia los avisos de un curso a todos los cursos
  add-examen     añade un examen a un estudiante
  update-fecha   actualiza la fecha de un examen
  rename-examen  renombra un curso
  delete-examen  elimina un examen

flags comunes: -config <ruta> (por defecto ./config.yaml)`)
}

type env struct {
	cfg   *config.Config
	store *storage.DB
	log   logx.Logger
	lim   reminder.Limits
}

func openEnv(cfgPath string) (*env, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logx.NewConsole("warn")
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeoutDuration(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &env{cfg: cfg, store: store, log: log, lim: cfg.Dispatch.Limits()}, nil
}

func dispatch(cmd string, args []string) error {
	switch cmd {
	case "run":
		return cmdRun(args)
	case "list":
		return cmdList(args)
	case "adduser":
		return cmdAddUser(args)
	case "set-globales":
		return cmdSetGlobales(args)
	case "set-curso":
		return cmdSetCurso(args)
	case "copiar-a-todos":
		return cmdCopiarATodos(args)
	case "add-examen":
		return cmdAddExamen(args)
	case "update-fecha":
		return cmdUpdateFecha(args)
	case "rename-examen":
		return cmdRenameExamen(args)
	case "delete-examen":
		return cmdDeleteExamen(args)
	case "-h", "--help", "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("comando desconocido: %s", cmd)
	}
}

// ---- run ----

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "ruta del config")
	simDate := fs.String("date", "", "fecha simulada YYYY-MM-DD (por defecto hoy)")
	send := fs.Bool("send", false, "enviar de verdad por Twilio en lugar de simular")
	ignoreHour := fs.Bool("ignore-hour", false, "ignorar el filtro de hora local")
	_ = fs.Parse(args)

	e, err := openEnv(*cfgPath)
	if err != nil {
		return err
	}
	defer e.store.Close()

	now := time.Now()
	today := reminder.Midnight(now)
	if *simDate != "" {
		if today, err = reminder.ParseDate(*simDate); err != nil {
			return fmt.Errorf("fecha simulada inválida: %w", err)
		}
	}

	log := logx.NewConsole("info")
	var sender transport.Sender
	if *send {
		sender = twilio.New(twilio.Config{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			From:       e.cfg.Transport.WhatsApp.From,
		}, log)
	} else {
		sender = dryrun.New(log)
	}

	disp := reminder.NewDispatcher(e.store, sender,
		reminder.NewQuoteSource(e.cfg.Dispatch.Quotes, e.cfg.Dispatch.QuoteSeed),
		reminder.Config{
			FireHour:        *e.cfg.Dispatch.FireHour,
			DefaultTimezone: e.cfg.Dispatch.DefaultTimezone,
			Limits:          e.lim,
			RatePerSec:      e.cfg.Transport.RatePerSec,
		}, log)

	rep, err := disp.Run(context.Background(), reminder.RunOptions{
		Today:          today,
		Now:            now,
		BypassHourGate: *ignoreHour,
	})
	if err != nil {
		return err
	}
	mode := "simulados"
	if *send {
		mode = "reales"
	}
	fmt.Printf("Proceso terminado. Hoy=%s  Mensajes %s enviados: %d (dedup: %d, fallos: %d)\n",
		today.Format(reminder.DateLayout), mode, rep.Sent, rep.Deduped, rep.Failures)
	return nil
}

// ---- list ----

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "ruta del config")
	_ = fs.Parse(args)

	e, err := openEnv(*cfgPath)
	if err != nil {
		return err
	}
	defer e.store.Close()

	students, err := e.store.ListStudents(context.Background())
	if err != nil {
		return err
	}
	for _, st := range students {
		fmt.Printf("\n— %s (tz: %s) —\n", st.Contact, st.Timezone)
		fmt.Printf("  usar_globales: %v\n", st.UseDefaults)
		if st.UseDefaults {
			fmt.Printf("  avisos_globales: %s\n", st.Defaults)
		}
		fmt.Println("  Exámenes:")
		for _, ex := range st.Exams {
			set, src := reminder.Resolve(st, ex, e.lim)
			note := set.String()
			if src != reminder.SourceOverride {
				note = "(" + note + ")"
			}
			fmt.Printf("    • %s (%s) -> avisos: %s\n", ex.Course, ex.Date.Format(reminder.DateLayout), note)
		}
	}
	fmt.Println()
	return nil
}

// ---- adduser ----

func cmdAddUser(args []string) error {
	fs := flag.NewFlagSet("adduser", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "ruta del config")
	contact := fs.String("contact", "", "número en formato internacional (ej: +51999999999)")
	tz := fs.String("tz", "", "zona horaria IANA (ej: America/Lima)")
	var exams examFlags
	fs.Var(&exams, "exam", `repetible: "Curso|YYYY-MM-DD|30,20,10,5" (avisos opcional)`)
	_ = fs.Parse(args)

	if *contact == "" {
		return fmt.Errorf("falta -contact")
	}

	e, err := openEnv(*cfgPath)
	if err != nil {
		return err
	}
	defer e.store.Close()

	zone := *tz
	if zone == "" {
		zone = e.cfg.Dispatch.DefaultTimezone
	}
	if _, err := time.LoadLocation(zone); err != nil {
		return fmt.Errorf("zona horaria inválida: %s", zone)
	}

	addr := *contact
	if !strings.Contains(addr, ":") {
		addr = e.cfg.Transport.ContactPrefix + addr
	}

	ctx := context.Background()
	st, err := e.store.FindStudent(ctx, addr)
	if err == reminder.ErrStudentNotFound {
		if st, err = e.store.CreateStudent(ctx, addr, zone); err != nil {
			return err
		}
		fmt.Printf("✅ Estudiante %s creado con zona horaria %s.\n", addr, zone)
	} else if err != nil {
		return err
	}

	for _, raw := range exams {
		ex, err := parseExamArg(raw, e.lim)
		if err != nil {
			return err
		}
		if err := e.store.AddExam(ctx, st.ID, ex); err != nil {
			return fmt.Errorf("examen %q: %w", ex.Course, err)
		}
		fmt.Printf("✅ Examen añadido: %s el %s\n", ex.Course, ex.Date.Format(reminder.DateLayout))
	}
	return nil
}

type examFlags []string

func (f *examFlags) String() string     { return strings.Join(*f, "; ") }
func (f *examFlags) Set(v string) error { *f = append(*f, v); return nil }

// parseExamArg parses "Curso|YYYY-MM-DD|30,20,10,5"; the notices segment is
// optional. Operator input is validated strictly.
func parseExamArg(raw string, lim reminder.Limits) (reminder.Exam, error) {
	parts := strings.Split(raw, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 || parts[0] == "" {
		return reminder.Exam{}, fmt.Errorf("formato inválido para -exam: %q (usa Curso|YYYY-MM-DD|30,20,10,5)", raw)
	}
	date, err := reminder.ParseDate(parts[1])
	if err != nil {
		return reminder.Exam{}, fmt.Errorf("fecha inválida en -exam %q: usa YYYY-MM-DD", raw)
	}
	ex := reminder.Exam{Course: parts[0], Date: date}
	if len(parts) > 2 && parts[2] != "" {
		set, err := lim.NormalizeStrict(strings.Split(parts[2], ","))
		if err != nil {
			return reminder.Exam{}, err
		}
		ex.Notices = set
	}
	return ex, nil
}

// ---- configuration mutations ----

func withStudent(cfgPath, contact string, fn func(ctx context.Context, e *env, st *reminder.Student) error) error {
	e, err := openEnv(cfgPath)
	if err != nil {
		return err
	}
	defer e.store.Close()

	addr := contact
	if addr != "" && !strings.Contains(addr, ":") {
		addr = e.cfg.Transport.ContactPrefix + addr
	}
	ctx := context.Background()
	st, err := e.store.FindStudent(ctx, addr)
	if err == reminder.ErrStudentNotFound {
		return fmt.Errorf("estudiante '%s' no encontrado", contact)
	}
	if err != nil {
		return err
	}
	return fn(ctx, e, st)
}

func cmdSetGlobales(args []string) error {
	fs := flag.NewFlagSet("set-globales", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "ruta del config")
	contact := fs.String("contact", "", "estudiante")
	dias := fs.String("dias", "", "días separados por comas, ej: 30,20,10,5")
	use := fs.Bool("usar", true, "activar usar_globales")
	_ = fs.Parse(args)

	return withStudent(*cfgPath, *contact, func(ctx context.Context, e *env, st *reminder.Student) error {
		set, err := e.lim.NormalizeStrict(strings.Split(*dias, ","))
		if err != nil {
			return err
		}
		if err := e.store.SetStudentDefaults(ctx, st.ID, set, *use); err != nil {
			return err
		}
		fmt.Printf("✅ Globales actualizados para %s: %s\n", st.Contact, set)
		return nil
	})
}

func cmdSetCurso(args []string) error {
	fs := flag.NewFlagSet("set-curso", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "ruta del config")
	contact := fs.String("contact", "", "estudiante")
	curso := fs.String("curso", "", "curso")
	dias := fs.String("dias", "", "días separados por comas")
	_ = fs.Parse(args)

	return withStudent(*cfgPath, *contact, func(ctx context.Context, e *env, st *reminder.Student) error {
		set, err := e.lim.NormalizeStrict(strings.Split(*dias, ","))
		if err != nil {
			return err
		}
		if err := e.store.SetExamNotices(ctx, st.ID, *curso, set); err != nil {
			return wrapCourseErr(err, *curso)
		}
		fmt.Printf("✅ Avisos del curso '%s': %s\n", *curso, set)
		return nil
	})
}

func cmdCopiarATodos(args []string) error {
	fs := flag.NewFlagSet("copiar-a-todos", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "ruta del config")
	contact := fs.String("contact", "", "estudiante")
	curso := fs.String("curso", "", "curso fuente")
	_ = fs.Parse(args)

	return withStudent(*cfgPath, *contact, func(ctx context.Context, e *env, st *reminder.Student) error {
		if err := e.store.CopyNoticesToAll(ctx, st.ID, *curso); err != nil {
			return wrapCourseErr(err, *curso)
		}
		fmt.Printf("✅ Avisos del curso '%s' copiados a TODOS los cursos de %s\n", *curso, st.Contact)
		return nil
	})
}

func cmdAddExamen(args []string) error {
	fs := flag.NewFlagSet("add-examen", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "ruta del config")
	contact := fs.String("contact", "", "estudiante")
	curso := fs.String("curso", "", "curso")
	fecha := fs.String("fecha", "", "fecha YYYY-MM-DD")
	dias := fs.String("dias", "", "avisos opcionales, separados por comas")
	_ = fs.Parse(args)

	return withStudent(*cfgPath, *contact, func(ctx context.Context, e *env, st *reminder.Student) error {
		date, err := reminder.ParseDate(*fecha)
		if err != nil {
			return fmt.Errorf("fecha inválida, usa el formato YYYY-MM-DD")
		}
		ex := reminder.Exam{Course: *curso, Date: date}
		if *dias != "" {
			if ex.Notices, err = e.lim.NormalizeStrict(strings.Split(*dias, ",")); err != nil {
				return err
			}
		}
		if err := e.store.AddExam(ctx, st.ID, ex); err != nil {
			if err == reminder.ErrDuplicateCourse {
				return fmt.Errorf("ya existe un examen para el curso '%s' (usa rename-examen o update-fecha)", *curso)
			}
			return err
		}
		fmt.Printf("✅ Examen añadido para %s: %s el %s\n", st.Contact, *curso, *fecha)
		return nil
	})
}

func cmdUpdateFecha(args []string) error {
	fs := flag.NewFlagSet("update-fecha", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "ruta del config")
	contact := fs.String("contact", "", "estudiante")
	curso := fs.String("curso", "", "curso")
	fecha := fs.String("nueva-fecha", "", "nueva fecha YYYY-MM-DD")
	_ = fs.Parse(args)

	return withStudent(*cfgPath, *contact, func(ctx context.Context, e *env, st *reminder.Student) error {
		date, err := reminder.ParseDate(*fecha)
		if err != nil {
			return fmt.Errorf("fecha inválida, usa el formato YYYY-MM-DD")
		}
		if err := e.store.SetExamDate(ctx, st.ID, *curso, date); err != nil {
			return wrapCourseErr(err, *curso)
		}
		fmt.Printf("✅ Fecha actualizada: %s - %s ahora es %s\n", st.Contact, *curso, *fecha)
		return nil
	})
}

func cmdRenameExamen(args []string) error {
	fs := flag.NewFlagSet("rename-examen", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "ruta del config")
	contact := fs.String("contact", "", "estudiante")
	curso := fs.String("curso", "", "curso actual")
	nuevo := fs.String("nuevo-curso", "", "nuevo nombre")
	_ = fs.Parse(args)

	return withStudent(*cfgPath, *contact, func(ctx context.Context, e *env, st *reminder.Student) error {
		err := e.store.RenameExam(ctx, st.ID, *curso, *nuevo)
		if err == reminder.ErrDuplicateCourse {
			return fmt.Errorf("ya existe un curso llamado '%s'", *nuevo)
		}
		if err != nil {
			return wrapCourseErr(err, *curso)
		}
		fmt.Printf("✅ Curso renombrado: '%s' -> '%s'\n", *curso, *nuevo)
		return nil
	})
}

func cmdDeleteExamen(args []string) error {
	fs := flag.NewFlagSet("delete-examen", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "ruta del config")
	contact := fs.String("contact", "", "estudiante")
	curso := fs.String("curso", "", "curso a eliminar")
	_ = fs.Parse(args)

	return withStudent(*cfgPath, *contact, func(ctx context.Context, e *env, st *reminder.Student) error {
		if err := e.store.DeleteExam(ctx, st.ID, *curso); err != nil {
			return wrapCourseErr(err, *curso)
		}
		fmt.Printf("✅ Examen eliminado: %s\n", *curso)
		return nil
	})
}

func wrapCourseErr(err error, curso string) error {
	if err == reminder.ErrExamNotFound {
		return fmt.Errorf("curso '%s' no encontrado", curso)
	}
	return err
}
