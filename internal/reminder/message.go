package reminder

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// DefaultQuotes is the built-in motivational pool, overridable via config.
func DefaultQuotes() []string {
	return []string{
		"El éxito es la suma de pequeños esfuerzos repetidos cada día. – Robert Collier",
		"La disciplina es el puente entre metas y logros. – Jim Rohn",
		"Haz lo que debes hacer, aunque no quieras hacerlo. – Brian Tracy",
		"No dejes que el tiempo decida por ti, decide tú por el tiempo. – Anónimo",
	}
}

// QuoteSource yields one motivational line per reminder. Injected so tests
// can pin the exact message body.
type QuoteSource interface {
	Pick() string
}

type randQuotes struct {
	mu   sync.Mutex
	rng  *rand.Rand
	pool []string
}

// NewQuoteSource picks uniformly from pool. A zero seed means
// time-seeded; any other value makes the sequence reproducible.
func NewQuoteSource(pool []string, seed int64) QuoteSource {
	if len(pool) == 0 {
		pool = DefaultQuotes()
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &randQuotes{rng: rand.New(rand.NewSource(seed)), pool: pool}
}

func (q *randQuotes) Pick() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pool[q.rng.Intn(len(q.pool))]
}

// SetPool swaps the quote pool at runtime (config reload).
func (q *randQuotes) SetPool(pool []string) {
	if len(pool) == 0 {
		return
	}
	q.mu.Lock()
	q.pool = pool
	q.mu.Unlock()
}

// RenderReminder builds the outbound WhatsApp-style body for a due reminder.
func RenderReminder(course string, days int, date time.Time, quote string) string {
	return fmt.Sprintf(
		"📢 *Recordatorio de examen*\n\n"+
			"Hola! Tu examen de *%s* es en *%d* día(s) (fecha: %s).\n\n"+
			"Es un buen momento para organizar tu estudio. 💪\n"+
			"Frase: %s",
		course, days, date.Format(DateLayout), quote,
	)
}
