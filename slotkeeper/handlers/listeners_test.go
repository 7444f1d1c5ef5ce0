package handlers

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/platform"
)

type fakeSlotEvents struct {
	observed []slots.Observation
	joined   []string
	result   *slots.QuotaResult
	joinRes  *slots.Result
	err      error
}

func (f *fakeSlotEvents) ObserveMessage(_ context.Context, o slots.Observation) (*slots.QuotaResult, error) {
	f.observed = append(f.observed, o)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeSlotEvents) MemberJoined(_ context.Context, ownerID string) (*slots.Result, error) {
	f.joined = append(f.joined, ownerID)
	if f.err != nil {
		return nil, f.err
	}
	return f.joinRes, nil
}

type fakeApplier struct {
	mu      sync.Mutex
	batches []slots.Batch
}

func (f *fakeApplier) Apply(_ context.Context, batches ...slots.Batch) (platform.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batches...)
	return platform.Report{Applied: len(batches)}, nil
}

func TestObservation(t *testing.T) {
	tests := []struct {
		name string
		msg  discord.Message
		want slots.Observation
	}{
		{
			name: "plain message",
			msg:  discord.Message{ID: 3, ChannelID: 2, Author: discord.User{ID: 1}, Content: "hello"},
			want: slots.Observation{AuthorID: "1", ChannelRef: "2", MessageRef: "3"},
		},
		{
			name: "everyone and here",
			msg:  discord.Message{ID: 3, ChannelID: 2, Author: discord.User{ID: 1}, Content: "@everyone @here drop", MentionEveryone: true},
			want: slots.Observation{AuthorID: "1", ChannelRef: "2", MessageRef: "3", Everyone: true, Here: true},
		},
		{
			name: "here only",
			msg:  discord.Message{ID: 3, ChannelID: 2, Author: discord.User{ID: 1}, Content: "@here restock", MentionEveryone: true},
			want: slots.Observation{AuthorID: "1", ChannelRef: "2", MessageRef: "3", Here: true},
		},
		{
			name: "mention text without permission",
			msg:  discord.Message{ID: 3, ChannelID: 2, Author: discord.User{ID: 1}, Content: "@everyone"},
			want: slots.Observation{AuthorID: "1", ChannelRef: "2", MessageRef: "3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Observation(tt.msg); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Observation() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListeners_HandleMessage(t *testing.T) {
	owner := &slots.Slot{OwnerID: "1", ChannelRef: "2"}
	effects := []slots.Effect{{Kind: slots.EffectDeleteMessage, OwnerID: "1"}}

	tests := []struct {
		name        string
		msgs        []discord.Message
		result      *slots.QuotaResult
		wantObserve int
		wantBatches int
	}{
		{
			name:        "counted ping applies effects",
			msgs:        []discord.Message{{ID: 10, ChannelID: 2, Author: discord.User{ID: 1}, Content: "@here", MentionEveryone: true}},
			result:      &slots.QuotaResult{Outcome: slots.QuotaOk, Slot: owner, Effects: effects},
			wantObserve: 1,
			wantBatches: 1,
		},
		{
			name:        "redelivered message is observed once",
			msgs:        []discord.Message{{ID: 10, ChannelID: 2, Author: discord.User{ID: 1}}, {ID: 10, ChannelID: 2, Author: discord.User{ID: 1}}},
			result:      &slots.QuotaResult{Outcome: slots.QuotaSuppressed, Slot: owner, Effects: effects},
			wantObserve: 1,
			wantBatches: 1,
		},
		{
			name:        "bot messages are skipped",
			msgs:        []discord.Message{{ID: 11, ChannelID: 2, Author: discord.User{ID: 5, Bot: true}}},
			result:      &slots.QuotaResult{Outcome: slots.QuotaIgnored},
			wantObserve: 0,
			wantBatches: 0,
		},
		{
			name:        "ignored messages apply nothing",
			msgs:        []discord.Message{{ID: 12, ChannelID: 7, Author: discord.User{ID: 1}}},
			result:      &slots.QuotaResult{Outcome: slots.QuotaIgnored},
			wantObserve: 1,
			wantBatches: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &fakeSlotEvents{result: tt.result}
			exec := &fakeApplier{}
			l, err := NewListeners(events, exec)
			if err != nil {
				t.Fatalf("NewListeners() error = %v", err)
			}
			for _, m := range tt.msgs {
				l.HandleMessage(context.Background(), m)
			}
			if len(events.observed) != tt.wantObserve {
				t.Errorf("observed got = %v, want %v", len(events.observed), tt.wantObserve)
			}
			if len(exec.batches) != tt.wantBatches {
				t.Errorf("batches got = %v, want %v", len(exec.batches), tt.wantBatches)
			}
		})
	}
}

func TestListeners_HandleJoin(t *testing.T) {
	tests := []struct {
		name        string
		joinRes     *slots.Result
		err         error
		wantBatches int
	}{
		{
			name:        "owner rejoins",
			joinRes:     &slots.Result{Slot: &slots.Slot{OwnerID: "1"}, Effects: []slots.Effect{{Kind: slots.EffectGrant}}},
			wantBatches: 1,
		},
		{
			name:        "not an owner",
			err:         slots.ErrNotFound,
			wantBatches: 0,
		},
		{
			name:        "store failure",
			err:         slots.ErrStoreIO,
			wantBatches: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &fakeSlotEvents{joinRes: tt.joinRes, err: tt.err}
			exec := &fakeApplier{}
			l, err := NewListeners(events, exec)
			if err != nil {
				t.Fatalf("NewListeners() error = %v", err)
			}
			l.HandleJoin(context.Background(), snowflake.ID(1).String())
			if !reflect.DeepEqual(events.joined, []string{"1"}) {
				t.Errorf("joined got = %v, want %v", events.joined, []string{"1"})
			}
			if len(exec.batches) != tt.wantBatches {
				t.Errorf("batches got = %v, want %v", len(exec.batches), tt.wantBatches)
			}
		})
	}
}
