package mock

import (
	context "context"
	reflect "reflect"
	time "time"

	slots "github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	gomock "go.uber.org/mock/gomock"
)

// MockStore is a mock of Store interface.
type MockStore struct {
	ctrl     *gomock.Controller
	recorder *MockStoreMockRecorder
	isgomock struct{}
}

// MockStoreMockRecorder is the mock recorder for MockStore.
type MockStoreMockRecorder struct {
	mock *MockStore
}

// NewMockStore creates a new mock instance.
func NewMockStore(ctrl *gomock.Controller) *MockStore {
	mock := &MockStore{ctrl: ctrl}
	mock.recorder = &MockStoreMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockStore) EXPECT() *MockStoreMockRecorder {
	return m.recorder
}

// Atomic mocks base method.
func (m *MockStore) Atomic(ctx context.Context, fn func(context.Context, slots.Tx) error) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Atomic", ctx, fn)
	ret0, _ := ret[0].(error)
	return ret0
}

// Atomic indicates an expected call of Atomic.
func (mr *MockStoreMockRecorder) Atomic(ctx, fn any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Atomic", reflect.TypeOf((*MockStore)(nil).Atomic), ctx, fn)
}

// FindBySecret mocks base method.
func (m *MockStore) FindBySecret(ctx context.Context, secret string) (*slots.Slot, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "FindBySecret", ctx, secret)
	ret0, _ := ret[0].(*slots.Slot)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// FindBySecret indicates an expected call of FindBySecret.
func (mr *MockStoreMockRecorder) FindBySecret(ctx, secret any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "FindBySecret", reflect.TypeOf((*MockStore)(nil).FindBySecret), ctx, secret)
}

// Get mocks base method.
func (m *MockStore) Get(ctx context.Context, ownerID string) (*slots.Slot, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Get", ctx, ownerID)
	ret0, _ := ret[0].(*slots.Slot)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Get indicates an expected call of Get.
func (mr *MockStoreMockRecorder) Get(ctx, ownerID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Get", reflect.TypeOf((*MockStore)(nil).Get), ctx, ownerID)
}

// List mocks base method.
func (m *MockStore) List(ctx context.Context, status slots.Status) ([]*slots.Slot, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "List", ctx, status)
	ret0, _ := ret[0].([]*slots.Slot)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// List indicates an expected call of List.
func (mr *MockStoreMockRecorder) List(ctx, status any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "List", reflect.TypeOf((*MockStore)(nil).List), ctx, status)
}

// Load mocks base method.
func (m *MockStore) Load(ctx context.Context, snap *slots.Snapshot) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Load", ctx, snap)
	ret0, _ := ret[0].(error)
	return ret0
}

// Load indicates an expected call of Load.
func (mr *MockStoreMockRecorder) Load(ctx, snap any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Load", reflect.TypeOf((*MockStore)(nil).Load), ctx, snap)
}

// Snapshot mocks base method.
func (m *MockStore) Snapshot(ctx context.Context) (*slots.Snapshot, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Snapshot", ctx)
	ret0, _ := ret[0].(*slots.Snapshot)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Snapshot indicates an expected call of Snapshot.
func (mr *MockStoreMockRecorder) Snapshot(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Snapshot", reflect.TypeOf((*MockStore)(nil).Snapshot), ctx)
}

// MockTx is a mock of Tx interface.
type MockTx struct {
	ctrl     *gomock.Controller
	recorder *MockTxMockRecorder
	isgomock struct{}
}

// MockTxMockRecorder is the mock recorder for MockTx.
type MockTxMockRecorder struct {
	mock *MockTx
}

// NewMockTx creates a new mock instance.
func NewMockTx(ctrl *gomock.Controller) *MockTx {
	mock := &MockTx{ctrl: ctrl}
	mock.recorder = &MockTxMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockTx) EXPECT() *MockTxMockRecorder {
	return m.recorder
}

// Get mocks base method.
func (m *MockTx) Get(ctx context.Context, ownerID string) (*slots.Slot, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Get", ctx, ownerID)
	ret0, _ := ret[0].(*slots.Slot)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Get indicates an expected call of Get.
func (mr *MockTxMockRecorder) Get(ctx, ownerID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Get", reflect.TypeOf((*MockTx)(nil).Get), ctx, ownerID)
}

// Insert mocks base method.
func (m *MockTx) Insert(ctx context.Context, slot *slots.Slot) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Insert", ctx, slot)
	ret0, _ := ret[0].(error)
	return ret0
}

// Insert indicates an expected call of Insert.
func (mr *MockTxMockRecorder) Insert(ctx, slot any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Insert", reflect.TypeOf((*MockTx)(nil).Insert), ctx, slot)
}

// MoveToActive mocks base method.
func (m *MockTx) MoveToActive(ctx context.Context, ownerID string, at time.Time) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "MoveToActive", ctx, ownerID, at)
	ret0, _ := ret[0].(error)
	return ret0
}

// MoveToActive indicates an expected call of MoveToActive.
func (mr *MockTxMockRecorder) MoveToActive(ctx, ownerID, at any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "MoveToActive", reflect.TypeOf((*MockTx)(nil).MoveToActive), ctx, ownerID, at)
}

// MoveToRevoked mocks base method.
func (m *MockTx) MoveToRevoked(ctx context.Context, ownerID string, reason string, at time.Time) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "MoveToRevoked", ctx, ownerID, reason, at)
	ret0, _ := ret[0].(error)
	return ret0
}

// MoveToRevoked indicates an expected call of MoveToRevoked.
func (mr *MockTxMockRecorder) MoveToRevoked(ctx, ownerID, reason, at any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "MoveToRevoked", reflect.TypeOf((*MockTx)(nil).MoveToRevoked), ctx, ownerID, reason, at)
}

// Remove mocks base method.
func (m *MockTx) Remove(ctx context.Context, ownerID string) (*slots.Slot, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Remove", ctx, ownerID)
	ret0, _ := ret[0].(*slots.Slot)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Remove indicates an expected call of Remove.
func (mr *MockTxMockRecorder) Remove(ctx, ownerID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Remove", reflect.TypeOf((*MockTx)(nil).Remove), ctx, ownerID)
}

// SecretInUse mocks base method.
func (m *MockTx) SecretInUse(ctx context.Context, secret string) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SecretInUse", ctx, secret)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// SecretInUse indicates an expected call of SecretInUse.
func (mr *MockTxMockRecorder) SecretInUse(ctx, secret any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SecretInUse", reflect.TypeOf((*MockTx)(nil).SecretInUse), ctx, secret)
}

// Upsert mocks base method.
func (m *MockTx) Upsert(ctx context.Context, slot *slots.Slot) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Upsert", ctx, slot)
	ret0, _ := ret[0].(error)
	return ret0
}

// Upsert indicates an expected call of Upsert.
func (mr *MockTxMockRecorder) Upsert(ctx, slot any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Upsert", reflect.TypeOf((*MockTx)(nil).Upsert), ctx, slot)
}
