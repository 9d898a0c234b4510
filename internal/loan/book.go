package loan

import (
	"sort"

	"github.com/google/uuid"
)

// Book is the per-engine store of loans keyed (account, id).
// It is not safe for concurrent use on its own; every access happens
// under the manager's serialization lock.
type Book struct {
	loans   map[Key]*Loan
	nextIDs map[uuid.UUID]uint64
}

type Key struct {
	Account uuid.UUID
	ID      uint64
}

func NewBook() *Book {
	return &Book{
		loans:   make(map[Key]*Loan),
		nextIDs: make(map[uuid.UUID]uint64),
	}
}

// Get returns the loan for (account, id), or nil.
func (b *Book) Get(account uuid.UUID, id uint64) *Loan {
	return b.loans[Key{Account: account, ID: id}]
}

// NextID assigns the next loan id for an account. IDs start at 1 and
// never repeat within an account.
func (b *Book) NextID(account uuid.UUID) uint64 {
	b.nextIDs[account]++
	return b.nextIDs[account]
}

// Put inserts or replaces a loan.
func (b *Book) Put(l *Loan) {
	b.loans[Key{Account: l.Account, ID: l.ID}] = l
}

// OpenLoans returns all open loans, ordered by (account, id) so that
// iteration is deterministic.
func (b *Book) OpenLoans() []*Loan {
	result := make([]*Loan, 0, len(b.loans))
	for _, l := range b.loans {
		if l.Open {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Account != result[j].Account {
			return result[i].Account.String() < result[j].Account.String()
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// AccountLoans returns every loan (open or closed) held by an account,
// ordered by id.
func (b *Book) AccountLoans(account uuid.UUID) []*Loan {
	result := make([]*Loan, 0)
	for key, l := range b.loans {
		if key.Account == account {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Restore sets a loan directly and advances the account's id counter.
// Used when reloading durable state at startup.
func (b *Book) Restore(l *Loan) {
	b.Put(l)
	if l.ID > b.nextIDs[l.Account] {
		b.nextIDs[l.Account] = l.ID
	}
}

// Len returns the number of stored loans, open and closed.
func (b *Book) Len() int { return len(b.loans) }
