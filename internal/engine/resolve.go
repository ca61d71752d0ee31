package engine

import (
	"context"
	"strings"

	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/internal/intent"
	"github.com/nileshdk/bolikhata/internal/namematch"
	"github.com/nileshdk/bolikhata/internal/store"
)

// candidate is one scored resolution option.
type candidate struct {
	customer store.Customer
	score    float64
	reason   string
}

// resolveCustomer maps the command's customer reference onto a database row.
// Ranking: exact name match, then phone substring, then fuzzy score, with a
// small boost for customers already in the session's ring. An ambiguous
// result returns MULTIPLE_CUSTOMERS with up to three options; a unique
// resolve promotes the customer to active.
func (e *Engine) resolveCustomer(ctx context.Context, ents intent.Entities, mem CustomerMemory) (*store.Customer, *ExecutionResult) {
	query := strings.TrimSpace(ents.String("customer"))

	// Pronoun reference or no name at all: the active customer is the only
	// sensible target.
	if ents.String("customerRef") == "active" || query == "" {
		id, name, ok := mem.ActiveCustomer()
		if !ok {
			res := fail(engineerr.New(engineerr.KindNotFound, engineerr.CodeCustomerNotFound,
				"kiski baat kar rahe hain? Customer ka naam boliye."))
			return nil, &res
		}
		c, err := e.store.Customers.GetByID(ctx, id)
		if err != nil {
			e.log.Warn("active customer vanished from store", "customer", id, "name", name)
			res := fail(err)
			return nil, &res
		}
		return c, nil
	}

	rows, err := e.store.Customers.Search(ctx, query, 25)
	if err != nil {
		res := fail(err)
		return nil, &res
	}

	candidates := e.rank(query, rows, mem.RingNames())
	switch {
	case len(candidates) == 0:
		res := fail(engineerr.Newf(engineerr.KindNotFound, engineerr.CodeCustomerNotFound,
			"%s naam ka koi customer nahi mila", query).
			WithData(map[string]any{"query": query}))
		return nil, &res

	case candidates[0].score < e.matchThreshold && len(candidates) > 1:
		options := make([]map[string]any, 0, 3)
		for _, c := range candidates {
			options = append(options, map[string]any{
				"id":       c.customer.ID,
				"name":     c.customer.Name,
				"landmark": c.customer.Landmark,
				"phone":    c.customer.Phone,
			})
			if len(options) == 3 {
				break
			}
		}
		res := fail(engineerr.Newf(engineerr.KindBusinessLogic, engineerr.CodeMultipleCustomers,
			"%s naam ke %d customer hain, kaun sa?", query, len(candidates)).
			WithData(map[string]any{"candidates": options}))
		return nil, &res
	}

	best := candidates[0].customer
	mem.Promote(best.ID, best.Name)
	return &best, nil
}

// rank scores rows against the query and sorts best-first.
func (e *Engine) rank(query string, rows []store.Customer, ringNames []string) []candidate {
	inRing := func(name string) bool {
		for _, rn := range ringNames {
			if r, ok := namematch.Match(name, rn, e.matchThreshold); ok && r.Score >= e.matchThreshold {
				return true
			}
		}
		return false
	}

	digitsOnly := strings.Trim(query, "0123456789") == "" && query != ""

	var out []candidate
	for _, row := range rows {
		c := candidate{customer: row}
		switch {
		case strings.EqualFold(row.Name, query) || strings.EqualFold(row.Nickname, query):
			c.score, c.reason = 1.0, "exact"
		case digitsOnly && row.Phone != "" && strings.Contains(row.Phone, query):
			c.score, c.reason = 0.95, "phone"
		default:
			r, ok := namematch.Match(query, row.Name, 0)
			if row.Nickname != "" {
				if rn, okn := namematch.Match(query, row.Nickname, 0); okn && rn.Score > r.Score {
					r, ok = rn, okn
				}
			}
			if !ok || r.Score == 0 {
				continue
			}
			c.score, c.reason = r.Score, string(r.Type)
		}
		// Customers the conversation already touched win ties.
		if inRing(row.Name) && c.score < 1.0 {
			c.score += 0.05
			if c.score > 1.0 {
				c.score = 1.0
			}
		}
		out = append(out, c)
	}

	// Insertion sort; candidate sets are tiny.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].score > out[j-1].score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
