package router

import (
	"context"
	"log"
	"regexp"
	"strings"

	"stella/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Classifier is the external classification capability. The router consults
// it at most once per query, and only for what the deterministic steps could
// not resolve. Failures degrade the decision, never the call.
type Classifier interface {
	Classify(ctx context.Context, text string, history []domain.RouteDecision) (domain.Task, []string, error)
}

// prefixTasks maps the explicit numeric task prefixes users can type to
// skip classification entirely.
var prefixTasks = map[string]domain.Task{
	"1": domain.TaskReport,
	"2": domain.TaskOverview,
	"3": domain.TaskCompanyNews,
	"4": domain.TaskGeneralNews,
	"5": domain.TaskHighlights,
}

var prefixRe = regexp.MustCompile(`^\s*([1-5])\s*[:.)-]\s*(.*)$`)

// followupPhrases are deictic references to a prior answer. Each entry is
// compiled with word boundaries and flexible spacing.
var followupPhrases = []string{
	"tell me more",
	"more about",
	"more detail",
	"more details",
	"expand on",
	"elaborate",
	"explain",
	"go on",
	"keep going",
	"what else",
	"anything else",
	"what about that",
	"why is that",
}

var followupPatterns = compilePhrases(followupPhrases)

func compilePhrases(phrases []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(phrases))
	for i, p := range phrases {
		out[i] = regexp.MustCompile(`(?i)\b` + strings.ReplaceAll(p, " ", `\s+`) + `\b`)
	}
	return out
}

// matchFollowup reports whether text contains follow-up phrasing and
// returns the text with the matched phrase removed, so entity scanning sees
// only the actual subject words.
func matchFollowup(text string) (string, bool) {
	for _, re := range followupPatterns {
		if re.MatchString(text) {
			return strings.TrimSpace(re.ReplaceAllString(text, " ")), true
		}
	}
	return text, false
}

// Router turns free-text queries into route decisions using cheap
// deterministic shortcuts before touching the classifier.
type Router struct {
	classifier Classifier
	tracer     trace.Tracer
}

func New(classifier Classifier, tracer trace.Tracer) *Router {
	return &Router{classifier: classifier, tracer: tracer}
}

// Route classifies one query into a task plus subject entities. history is
// caller-owned state used only to resolve follow-ups; nil is a valid empty
// window. Route never fails: a dead classifier means general news.
func (r *Router) Route(ctx context.Context, query string, history *History) domain.RouteDecision {
	ctx, span := r.tracer.Start(ctx, "router.route")
	defer span.End()

	d := domain.RouteDecision{RawQuery: query}
	text := strings.TrimSpace(query)

	if m := prefixRe.FindStringSubmatch(text); m != nil {
		d.Task = prefixTasks[m[1]]
		text = strings.TrimSpace(m[2])
	}

	if d.Task == "" {
		if rest, ok := matchFollowup(text); ok {
			d.Task = domain.TaskFollowup
			text = rest
		}
	}

	d.Entities = ScanEntities(text)
	if d.Task == domain.TaskFollowup && len(d.Entities) == 0 && history != nil {
		d.Entities = history.LastEntities()
	}

	if d.Task == "" || (taskNeedsEntities(d.Task) && len(d.Entities) == 0) {
		r.classify(ctx, &d, text, history)
	}
	if d.Task == "" {
		d.Task = domain.TaskGeneralNews
	}

	span.SetAttributes(
		attribute.String("task", string(d.Task)),
		attribute.Int("entities", len(d.Entities)),
	)
	return d
}

// classify fills whatever the deterministic steps left open. It never
// overwrites a task or entity list that is already decided.
func (r *Router) classify(ctx context.Context, d *domain.RouteDecision, text string, history *History) {
	if r.classifier == nil {
		return
	}
	ctx, span := r.tracer.Start(ctx, "router.classify")
	defer span.End()

	var window []domain.RouteDecision
	if history != nil {
		window = history.Items()
	}
	task, entities, err := r.classifier.Classify(ctx, text, window)
	if err != nil {
		log.Printf("Warning: classification unavailable for %q: %v", text, err)
		span.SetAttributes(attribute.Bool("degraded", true))
		return
	}
	if d.Task == "" {
		d.Task = task
	}
	if len(d.Entities) == 0 {
		d.Entities = normalizeEntities(entities)
	}
}

// taskNeedsEntities reports whether a task is about specific companies, so
// an empty entity list counts as unresolved for it.
func taskNeedsEntities(t domain.Task) bool {
	switch t {
	case domain.TaskReport, domain.TaskOverview, domain.TaskCompanyNews, domain.TaskHighlights:
		return true
	}
	return false
}

func normalizeEntities(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, e := range in {
		e = strings.ToUpper(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
