package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Dan9191/card-service/internal/models"
)

// MemoryStore is a Store kept in process memory. Units of work read committed
// state, buffer their writes and apply them atomically on commit. Row locks
// are exclusive, held until the unit of work ends, and their waits honour the
// unit of work's timeout.
type MemoryStore struct {
	mu         sync.Mutex
	cards      map[int64]models.Card
	users      map[int64]models.User
	locks      map[int64]chan struct{}
	nextCardID int64
	nextUserID int64
	now        func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards: make(map[int64]models.Card),
		users: make(map[int64]models.User),
		locks: make(map[int64]chan struct{}),
		now:   time.Now,
	}
}

// InTx implements Store.
func (s *MemoryStore) InTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tx := &memTx{
		store:   s,
		held:    make(map[int64]chan struct{}),
		writes:  make(map[int64]models.Card),
		base:    make(map[int64]int64),
		deletes: make(map[int64]bool),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit(ctx)
}

func (s *MemoryStore) rowLock(id int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

type memTx struct {
	store    *MemoryStore
	held     map[int64]chan struct{}
	writes   map[int64]models.Card
	base     map[int64]int64 // committed version each write was computed from
	deletes  map[int64]bool
	newCards []models.Card
	newUsers []models.User
}

func (t *memTx) Cards() CardRepository { return memCards{t} }
func (t *memTx) Users() UserRepository { return memUsers{t} }

func (t *memTx) lock(ctx context.Context, id int64) error {
	if _, ok := t.held[id]; ok {
		return nil
	}
	ch := t.store.rowLock(id)
	select {
	case ch <- struct{}{}:
		t.held[id] = ch
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.ErrLockTimeout
		}
		return ctx.Err()
	}
}

func (t *memTx) release() {
	for id, ch := range t.held {
		<-ch
		delete(t.held, id)
	}
}

// card returns the card as this unit of work sees it.
func (t *memTx) card(id int64) (models.Card, bool) {
	if t.deletes[id] {
		return models.Card{}, false
	}
	if c, ok := t.writes[id]; ok {
		return c, true
	}
	for _, c := range t.newCards {
		if c.ID == id {
			return c, true
		}
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	c, ok := t.store.cards[id]
	return c, ok
}

// visibleCards returns committed cards merged with this unit of work's writes.
func (t *memTx) visibleCards() []models.Card {
	t.store.mu.Lock()
	out := make([]models.Card, 0, len(t.store.cards)+len(t.newCards))
	for id, c := range t.store.cards {
		if t.deletes[id] {
			continue
		}
		if w, ok := t.writes[id]; ok {
			c = w
		}
		out = append(out, c)
	}
	t.store.mu.Unlock()
	return append(out, t.newCards...)
}

func (t *memTx) commit(ctx context.Context) error {
	// Writers wait for row locks held by other units of work, as an UPDATE would.
	ids := make([]int64, 0, len(t.writes)+len(t.deletes))
	for id := range t.writes {
		ids = append(ids, id)
	}
	for id := range t.deletes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := t.lock(ctx, id); err != nil {
			return err
		}
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range t.writes {
		current, ok := s.cards[id]
		if !ok || current.Version != t.base[id] {
			return models.ErrStaleCard
		}
	}
	for _, u := range t.newUsers {
		for _, existing := range s.users {
			if existing.Username == u.Username {
				return models.ErrUserAlreadyExists
			}
		}
	}
	for _, c := range t.newCards {
		for _, existing := range s.cards {
			if existing.NumberDigest == c.NumberDigest {
				return errors.New("failed to create card: duplicate number digest")
			}
			if c.Status == models.StatusPendingActive && existing.Status == models.StatusPendingActive &&
				existing.OwnerID == c.OwnerID {
				return models.ErrCardPendingActive
			}
		}
	}

	for id, card := range t.writes {
		s.cards[id] = card
	}
	for id := range t.deletes {
		delete(s.cards, id)
	}
	for _, c := range t.newCards {
		s.cards[c.ID] = c
	}
	for _, u := range t.newUsers {
		s.users[u.ID] = u
	}
	return nil
}

type memCards struct {
	tx *memTx
}

func (r memCards) FindByID(_ context.Context, id int64) (models.Card, error) {
	c, ok := r.tx.card(id)
	if !ok {
		return models.Card{}, models.ErrCardNotFound
	}
	return c, nil
}

func (r memCards) FindByIDAndOwner(ctx context.Context, id, ownerID int64) (models.Card, error) {
	c, err := r.FindByID(ctx, id)
	if err != nil {
		return models.Card{}, err
	}
	if c.OwnerID != ownerID {
		return models.Card{}, models.ErrCardNotFound
	}
	return c, nil
}

func (r memCards) FindByIDForUpdate(ctx context.Context, id int64) (models.Card, error) {
	if err := r.tx.lock(ctx, id); err != nil {
		return models.Card{}, err
	}
	return r.FindByID(ctx, id)
}

func (r memCards) ExistsByDigest(_ context.Context, digest string) (bool, error) {
	for _, c := range r.tx.visibleCards() {
		if c.NumberDigest == digest {
			return true, nil
		}
	}
	return false, nil
}

func (r memCards) ExistsByOwnerAndStatus(_ context.Context, ownerID int64, status models.CardStatus) (bool, error) {
	for _, c := range r.tx.visibleCards() {
		if c.OwnerID == ownerID && c.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (r memCards) Create(_ context.Context, card *models.Card) error {
	s := r.tx.store
	s.mu.Lock()
	s.nextCardID++
	card.ID = s.nextCardID
	now := s.now()
	s.mu.Unlock()

	card.Version = 1
	card.CreatedAt = now
	card.UpdatedAt = now
	r.tx.newCards = append(r.tx.newCards, *card)
	return nil
}

func (r memCards) Update(_ context.Context, card models.Card) (models.Card, error) {
	for i, c := range r.tx.newCards {
		if c.ID == card.ID {
			if c.Version != card.Version {
				return models.Card{}, models.ErrStaleCard
			}
			card.Version++
			card.UpdatedAt = r.tx.store.now()
			r.tx.newCards[i] = card
			return card, nil
		}
	}

	current, ok := r.tx.card(card.ID)
	if !ok || current.Version != card.Version {
		return models.Card{}, models.ErrStaleCard
	}
	if _, written := r.tx.writes[card.ID]; !written {
		r.tx.base[card.ID] = current.Version
	}
	updated := current
	updated.Status = card.Status
	updated.Balance = card.Balance
	updated.Version++
	updated.UpdatedAt = r.tx.store.now()
	r.tx.writes[card.ID] = updated
	return updated, nil
}

func (r memCards) DeleteByID(_ context.Context, id int64) (bool, error) {
	for i, c := range r.tx.newCards {
		if c.ID == id {
			r.tx.newCards = append(r.tx.newCards[:i], r.tx.newCards[i+1:]...)
			return true, nil
		}
	}
	current, ok := r.tx.card(id)
	if !ok {
		return false, nil
	}
	if _, written := r.tx.writes[id]; !written {
		r.tx.base[id] = current.Version
	}
	delete(r.tx.writes, id)
	r.tx.deletes[id] = true
	return true, nil
}

func (r memCards) ListByOwner(_ context.Context, ownerID int64, page models.PageRequest) ([]models.Card, int, error) {
	var owned []models.Card
	for _, c := range r.tx.visibleCards() {
		if c.OwnerID == ownerID {
			owned = append(owned, c)
		}
	}
	return paginate(owned, page)
}

func (r memCards) ListAll(_ context.Context, page models.PageRequest) ([]models.Card, int, error) {
	return paginate(r.tx.visibleCards(), page)
}

func (r memCards) CountByStatus(context.Context) (map[models.CardStatus]int, error) {
	counts := make(map[models.CardStatus]int)
	for _, c := range r.tx.visibleCards() {
		counts[c.Status]++
	}
	return counts, nil
}

func paginate(cards []models.Card, page models.PageRequest) ([]models.Card, int, error) {
	sort.Slice(cards, func(i, j int) bool {
		if !cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].CreatedAt.After(cards[j].CreatedAt)
		}
		return cards[i].ID > cards[j].ID
	})
	total := len(cards)
	start := page.Offset()
	if start >= total {
		return []models.Card{}, total, nil
	}
	end := start + page.Size
	if end > total {
		end = total
	}
	return cards[start:end], total, nil
}

type memUsers struct {
	tx *memTx
}

func (r memUsers) all() []models.User {
	s := r.tx.store
	s.mu.Lock()
	out := make([]models.User, 0, len(s.users)+len(r.tx.newUsers))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.Unlock()
	return append(out, r.tx.newUsers...)
}

func (r memUsers) Create(_ context.Context, user *models.User) error {
	for _, u := range r.all() {
		if u.Username == user.Username {
			return models.ErrUserAlreadyExists
		}
	}
	s := r.tx.store
	s.mu.Lock()
	s.nextUserID++
	user.ID = s.nextUserID
	now := s.now()
	s.mu.Unlock()

	user.CreatedAt = now
	user.UpdatedAt = now
	r.tx.newUsers = append(r.tx.newUsers, *user)
	return nil
}

func (r memUsers) FindByID(_ context.Context, id int64) (models.User, error) {
	for _, u := range r.all() {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, models.ErrUserNotFound
}

func (r memUsers) FindByUsername(_ context.Context, username string) (models.User, error) {
	for _, u := range r.all() {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, models.ErrUserNotFound
}

func (r memUsers) ExistsByRole(_ context.Context, role models.Role) (bool, error) {
	for _, u := range r.all() {
		if u.Role == role {
			return true, nil
		}
	}
	return false, nil
}
