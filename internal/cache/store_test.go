package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"orderdesk/internal/label"
	"orderdesk/internal/model"
	"orderdesk/internal/status"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errRemote = errors.New("remote rejected the update")

type fakeRemote struct {
	mu      sync.Mutex
	orders  []model.Order
	bulk    [][]TagUpdate
	fetches atomic.Int32
	writes  atomic.Int32
	// hook runs on every write; a non-nil error fails it.
	hook     func(method string, id int64) error
	shipment model.Shipment
	// fetched runs after a fetch has built its response.
	fetched func()
}

func (f *fakeRemote) FetchOrders(context.Context) ([]model.Order, error) {
	f.fetches.Add(1)
	f.mu.Lock()
	out := make([]model.Order, len(f.orders))
	for i, o := range f.orders {
		out[i] = o.Clone()
	}
	fetched := f.fetched
	f.mu.Unlock()
	if fetched != nil {
		fetched()
	}
	return out, nil
}

func (f *fakeRemote) write(method string, id int64) error {
	f.writes.Add(1)
	if f.hook == nil {
		return nil
	}
	return f.hook(method, id)
}

func (f *fakeRemote) ReplaceTags(_ context.Context, id int64, _ label.Labels) error {
	return f.write("tags", id)
}

func (f *fakeRemote) ReplaceNote(_ context.Context, id int64, _ string) error {
	return f.write("note", id)
}

func (f *fakeRemote) SetPriority(_ context.Context, id int64, _ bool) error {
	return f.write("priority", id)
}

func (f *fakeRemote) ReplaceStatus(_ context.Context, id int64, _ label.Labels) error {
	return f.write("status", id)
}

func (f *fakeRemote) ReplaceDates(_ context.Context, id int64, _ DateUpdate) error {
	return f.write("dates", id)
}

func (f *fakeRemote) BulkReplaceStatus(_ context.Context, updates []TagUpdate) error {
	f.mu.Lock()
	f.bulk = append(f.bulk, updates)
	f.mu.Unlock()
	return f.write("bulk", 0)
}

func (f *fakeRemote) MarkDeleted(_ context.Context, id int64, _ label.Labels) error {
	return f.write("delete", id)
}

func (f *fakeRemote) CreateShipment(_ context.Context, id int64, _ model.ShipmentRequest) (model.Shipment, error) {
	if err := f.write("shipment", id); err != nil {
		return model.Shipment{}, err
	}
	s := f.shipment
	s.OrderID = id
	return s, nil
}

type recorder struct {
	mu      sync.Mutex
	records []Record
	notices []Notice
}

func (r *recorder) Record(_ context.Context, rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) snapshot() ([]Record, []Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...), append([]Notice(nil), r.notices...)
}

var fixedNow = time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC)

func sampleOrders() []model.Order {
	due := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	return []model.Order{
		{
			ID:        1,
			Name:      "#1001",
			Customer:  &model.Customer{FirstName: "Mona", LastName: "Adel", Phone: "0100"},
			Total:     decimal.RequireFromString("120.00"),
			LineItems: []model.LineItem{{Title: "Mug", VariantTitle: "Blue", Quantity: 1}},
			Note:      "gift",
			Tags:      label.Labels{"customer_confirmed", "vip", "custom_due_date:2024-05-20"},
			CreatedAt: time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC),

			CustomDueDate: &due,
		},
		{ID: 2, Name: "#1002", Tags: label.Labels{}, CreatedAt: time.Date(2024, 5, 11, 8, 0, 0, 0, time.UTC)},
		{ID: 3, Name: "#1003", Tags: label.Labels{"shipped"}, CreatedAt: time.Date(2024, 5, 12, 8, 0, 0, 0, time.UTC)},
	}
}

func newTestStore(t *testing.T, remote *fakeRemote, opts Options) (*Store, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts.Journal = rec
	opts.Notifier = rec
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.RefetchDelay == 0 {
		opts.RefetchDelay = time.Hour
	}
	s := New(remote, opts)
	t.Cleanup(s.Close)

	if remote.orders == nil {
		remote.orders = sampleOrders()
	}
	require.NoError(t, s.Refresh(context.Background()))
	remote.fetches.Store(0)
	return s, rec
}

func mustGet(t *testing.T, s *Store, id int64) model.Order {
	t.Helper()
	o, ok := s.Get(id)
	require.True(t, ok, "order %d missing", id)
	return o
}

func TestStatusAppliesBeforeRemoteWrite(t *testing.T) {
	release := make(chan struct{})
	remote := &fakeRemote{hook: func(string, int64) error {
		<-release
		return nil
	}}
	s, rec := newTestStore(t, remote, Options{})
	before := s.Version()

	require.NoError(t, s.SetStatus(context.Background(), 2, status.Shipped))

	assert.Equal(t, status.Shipped, mustGet(t, s, 2).Facts().Status)
	assert.Greater(t, s.Version(), before)
	assert.True(t, s.Snapshot().Touched(2))

	close(release)
	s.Wait()

	assert.Equal(t, status.Shipped, mustGet(t, s, 2).Facts().Status)
	records, notices := rec.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, OutcomeCommitted, records[0].Outcome)
	assert.Equal(t, KindStatus, records[0].Kind)
	assert.Equal(t, []int64{2}, records[0].OrderIDs)
	assert.NotEmpty(t, records[0].ID)
	assert.Empty(t, notices)
}

func TestFailedWriteRestoresSnapshotExactly(t *testing.T) {
	remote := &fakeRemote{hook: func(string, int64) error { return errRemote }}
	s, rec := newTestStore(t, remote, Options{})
	original := mustGet(t, s, 1)
	due := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	mutations := []func() error{
		func() error { return s.SetDueDate(context.Background(), 1, &due) },
		func() error { return s.SetStartDate(context.Background(), 1, &due) },
		func() error { return s.UpdateNote(context.Background(), 1, "call first") },
		func() error { return s.ReplaceTags(context.Background(), 1, label.Labels{"x"}) },
		func() error { return s.SetPriority(context.Background(), 1, true) },
		func() error { return s.SetStatus(context.Background(), 1, status.Fulfilled) },
		func() error { return s.Delete(context.Background(), 1) },
	}
	for _, m := range mutations {
		require.NoError(t, m())
		assert.NotEqual(t, original, mustGet(t, s, 1))
		s.Wait()
		assert.Equal(t, original, mustGet(t, s, 1))
	}

	records, notices := rec.snapshot()
	require.Len(t, records, len(mutations))
	for _, r := range records {
		assert.Equal(t, OutcomeRolledBack, r.Outcome)
		assert.Equal(t, errRemote.Error(), r.Error)
	}
	require.Len(t, notices, len(mutations))
	assert.ErrorIs(t, notices[0].Err, errRemote)
	assert.Contains(t, notices[0].Message, "order 1")
}

func TestRollbackKeepsLaterMutation(t *testing.T) {
	release := make(chan struct{})
	remote := &fakeRemote{hook: func(method string, _ int64) error {
		if method == "status" {
			<-release
			return errRemote
		}
		return nil
	}}
	s, _ := newTestStore(t, remote, Options{})

	require.NoError(t, s.SetStatus(context.Background(), 2, status.Shipped))
	require.NoError(t, s.SetPriority(context.Background(), 2, true))

	o := mustGet(t, s, 2)
	assert.Equal(t, status.Shipped, o.Facts().Status)
	assert.True(t, o.Facts().Has(label.Priority))

	close(release)
	s.Wait()

	o = mustGet(t, s, 2)
	assert.Equal(t, status.Pending, o.Facts().Status, "failed status write is undone")
	assert.True(t, o.Facts().Has(label.Priority), "later priority write survives")
}

func TestRollbackOfLaterMutationKeepsEarlierOne(t *testing.T) {
	release := make(chan struct{})
	remote := &fakeRemote{hook: func(method string, _ int64) error {
		<-release
		if method == "note" {
			return errRemote
		}
		return nil
	}}
	s, _ := newTestStore(t, remote, Options{})

	require.NoError(t, s.SetStatus(context.Background(), 1, status.ReadyToShip))
	require.NoError(t, s.UpdateNote(context.Background(), 1, "fragile"))
	close(release)
	s.Wait()

	o := mustGet(t, s, 1)
	assert.Equal(t, status.ReadyToShip, o.Facts().Status)
	assert.Equal(t, "gift", o.Note)
}

func TestBulkStatusSchedulesOneRefetch(t *testing.T) {
	remote := &fakeRemote{}
	s, rec := newTestStore(t, remote, Options{RefetchDelay: 50 * time.Millisecond})

	require.NoError(t, s.BulkSetStatus(context.Background(), []int64{1, 2, 3, 2}, status.Paid))
	for _, id := range []int64{1, 2, 3} {
		assert.Equal(t, status.Paid, mustGet(t, s, id).Facts().Status)
	}
	s.Wait()

	assert.Eventually(t, func() bool { return remote.fetches.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), remote.fetches.Load())

	remote.mu.Lock()
	require.Len(t, remote.bulk, 1)
	assert.Len(t, remote.bulk[0], 3)
	remote.mu.Unlock()

	records, _ := rec.snapshot()
	require.Len(t, records, 1)
	assert.ElementsMatch(t, []int64{1, 2, 3}, records[0].OrderIDs)
}

func TestReconcileFetchesCoalesce(t *testing.T) {
	remote := &fakeRemote{shipment: model.Shipment{Barcode: "MYL1", Status: "created"}}
	s, _ := newTestStore(t, remote, Options{RefetchDelay: 100 * time.Millisecond})

	require.NoError(t, s.BulkSetStatus(context.Background(), []int64{1, 2}, status.ReadyToShip))
	require.NoError(t, s.CreateShipment(context.Background(), 1, model.ShipmentRequest{CityID: "5"}))
	require.NoError(t, s.CreateShipment(context.Background(), 2, model.ShipmentRequest{CityID: "5"}))
	s.Wait()

	assert.Eventually(t, func() bool { return remote.fetches.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), remote.fetches.Load())
}

func TestBulkFailureRollsBackEveryOrder(t *testing.T) {
	remote := &fakeRemote{hook: func(string, int64) error { return errRemote }}
	s, rec := newTestStore(t, remote, Options{RefetchDelay: 20 * time.Millisecond})
	before := s.Snapshot().Orders

	require.NoError(t, s.BulkSetStatus(context.Background(), []int64{1, 2, 3}, status.Cancelled))
	s.Wait()

	assert.Equal(t, before, s.Snapshot().Orders)
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, remote.fetches.Load(), "failed bulk writes do not refetch")

	_, notices := rec.snapshot()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Message, "3 orders")
}

func TestShipmentPatchesBarcodeOnSuccess(t *testing.T) {
	remote := &fakeRemote{shipment: model.Shipment{
		Barcode:   "MYL42",
		Status:    "created",
		CreatedAt: time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC),
	}}
	s, _ := newTestStore(t, remote, Options{})

	require.NoError(t, s.CreateShipment(context.Background(), 3, model.ShipmentRequest{CityID: "1"}))
	s.Wait()

	facts := mustGet(t, s, 3).Facts()
	assert.Equal(t, "MYL42", facts.Keyed[label.ShippingBarcode])
	assert.Equal(t, "2024-05-14", facts.Keyed[label.ShippingDate])
}

func TestGraceWindowExpires(t *testing.T) {
	s, _ := newTestStore(t, &fakeRemote{}, Options{GraceWindow: 50 * time.Millisecond})

	require.NoError(t, s.SetStatus(context.Background(), 2, status.Confirmed))
	s.Wait()
	assert.True(t, s.Snapshot().Touched(2))
	v := s.Version()

	assert.Eventually(t, func() bool { return !s.Snapshot().Touched(2) }, time.Second, 10*time.Millisecond)
	assert.Greater(t, s.Version(), v)
}

func TestGraceWindowReArmsOnNewTransition(t *testing.T) {
	s, _ := newTestStore(t, &fakeRemote{}, Options{GraceWindow: 200 * time.Millisecond})

	require.NoError(t, s.SetStatus(context.Background(), 2, status.Confirmed))
	time.Sleep(120 * time.Millisecond)
	require.NoError(t, s.SetStatus(context.Background(), 2, status.ReadyToShip))
	time.Sleep(130 * time.Millisecond)

	assert.True(t, s.Snapshot().Touched(2), "second transition extends the window")
	assert.Eventually(t, func() bool { return !s.Snapshot().Touched(2) }, time.Second, 10*time.Millisecond)
}

func TestNoOpStatusDoesNotDispatch(t *testing.T) {
	remote := &fakeRemote{}
	s, rec := newTestStore(t, remote, Options{})
	v := s.Version()

	require.NoError(t, s.SetStatus(context.Background(), 3, status.Shipped))
	require.NoError(t, s.SetPriority(context.Background(), 2, false))
	s.Wait()

	assert.Equal(t, v, s.Version())
	assert.Zero(t, remote.writes.Load())
	assert.False(t, s.Snapshot().Touched(3))
	records, _ := rec.snapshot()
	assert.Empty(t, records)
}

func TestFulfilledUsesStoreClock(t *testing.T) {
	s, _ := newTestStore(t, &fakeRemote{}, Options{})

	require.NoError(t, s.SetStatus(context.Background(), 1, status.Fulfilled))
	s.Wait()

	assert.Contains(t, mustGet(t, s, 1).Tags, "fulfillment_date:2024-05-14")
}

func TestUnknownOrderAndClosedStore(t *testing.T) {
	s, _ := newTestStore(t, &fakeRemote{}, Options{})

	err := s.SetStatus(context.Background(), 99, status.Paid)
	assert.ErrorIs(t, err, ErrUnknownOrder)

	err = s.BulkSetStatus(context.Background(), []int64{1, 99}, status.Paid)
	assert.ErrorIs(t, err, ErrUnknownOrder)
	assert.Equal(t, status.Confirmed, mustGet(t, s, 1).Facts().Status, "bulk is all-or-nothing")

	s.Close()
	assert.ErrorIs(t, s.UpdateNote(context.Background(), 1, "x"), ErrClosed)
}

func TestRefreshReplaysUnsettledMutations(t *testing.T) {
	release := make(chan struct{})
	remote := &fakeRemote{hook: func(string, int64) error {
		<-release
		return nil
	}}
	s, _ := newTestStore(t, remote, Options{})

	require.NoError(t, s.SetStatus(context.Background(), 2, status.Shipped))
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, status.Shipped, mustGet(t, s, 2).Facts().Status)

	close(release)
	s.Wait()
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, status.Pending, mustGet(t, s, 2).Facts().Status, "fake remote never stored the write")
}

// gateFirstFetch blocks the next fetch after it has read the remote state,
// until release is closed. Later fetches pass through.
func gateFirstFetch(remote *fakeRemote) (built, release chan struct{}) {
	built, release = make(chan struct{}), make(chan struct{})
	var once atomic.Bool
	remote.mu.Lock()
	remote.fetched = func() {
		if once.CompareAndSwap(false, true) {
			close(built)
			<-release
		}
	}
	remote.mu.Unlock()
	return built, release
}

func pendingLen(s *Store) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func TestStaleFetchKeepsWriteAcceptedMeanwhile(t *testing.T) {
	remote := &fakeRemote{}
	s, _ := newTestStore(t, remote, Options{})
	built, release := gateFirstFetch(remote)

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background()) }()
	<-built

	require.NoError(t, s.UpdateNote(context.Background(), 1, "ring before noon"))
	s.Wait()
	assert.Equal(t, 1, pendingLen(s), "accepted write is held for the running fetch")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "ring before noon", mustGet(t, s, 1).Note)
	assert.Zero(t, pendingLen(s), "no fetch left that could miss the write")
}

func TestOverlappingFetchesKeepAcceptedWrite(t *testing.T) {
	remote := &fakeRemote{}
	remote.hook = func(method string, id int64) error {
		remote.mu.Lock()
		defer remote.mu.Unlock()
		remote.orders[0].Note = "ring before noon"
		return nil
	}
	s, _ := newTestStore(t, remote, Options{})
	built, release := gateFirstFetch(remote)

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background()) }()
	<-built

	require.NoError(t, s.UpdateNote(context.Background(), 1, "ring before noon"))
	s.Wait()

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, "ring before noon", mustGet(t, s, 1).Note)
	assert.Equal(t, 1, pendingLen(s), "older fetch still running")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "ring before noon", mustGet(t, s, 1).Note)
	assert.Zero(t, pendingLen(s))
}

func TestRefreshKeepsOrdersMissingFromFetch(t *testing.T) {
	remote := &fakeRemote{}
	s, _ := newTestStore(t, remote, Options{})

	remote.mu.Lock()
	remote.orders = []model.Order{
		{ID: 3, Tags: label.Labels{"shipped"}},
		{ID: 4, Tags: label.Of("paid, vip")},
	}
	remote.mu.Unlock()
	require.NoError(t, s.Refresh(context.Background()))

	snap := s.Snapshot()
	ids := make([]int64, 0, len(snap.Orders))
	for _, o := range snap.Orders {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []int64{3, 4, 1, 2}, ids)
	assert.Equal(t, 4, s.Len())
}

func TestSnapshotIsIsolated(t *testing.T) {
	s, _ := newTestStore(t, &fakeRemote{}, Options{})

	snap := s.Snapshot()
	snap.Orders[0].Tags[0] = "cancelled"
	snap.Orders[0].Customer.FirstName = "X"

	o := mustGet(t, s, 1)
	assert.Equal(t, "customer_confirmed", o.Tags[0])
	assert.Equal(t, "Mona", o.Customer.FirstName)
}

func TestActorAndJournalsFanOut(t *testing.T) {
	type actorKey struct{}
	second := &recorder{}
	remote := &fakeRemote{}
	first := &recorder{}
	s := New(remote, Options{
		Journal:      Journals{first, nil, second},
		Actor:        func(ctx context.Context) string { v, _ := ctx.Value(actorKey{}).(string); return v },
		RefetchDelay: time.Hour,
	})
	t.Cleanup(s.Close)
	remote.orders = sampleOrders()
	require.NoError(t, s.Refresh(context.Background()))

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), actorKey{}, "ops"))
	require.NoError(t, s.UpdateNote(ctx, 2, "hi"))
	cancel()
	s.Wait()

	r1, _ := first.snapshot()
	r2, _ := second.snapshot()
	require.Len(t, r1, 1)
	require.Len(t, r2, 1)
	assert.Equal(t, "ops", r1[0].Actor)
	assert.Equal(t, OutcomeCommitted, r1[0].Outcome, "a cancelled request context does not cancel the write")
	assert.GreaterOrEqual(t, r1[0].Duration(), time.Duration(0))
}
