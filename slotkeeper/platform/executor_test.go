package platform

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
)

type fakeDiscord struct {
	mu        sync.Mutex
	nextID    snowflake.ID
	calls     []string
	overwrite map[snowflake.ID]discord.PermissionOverwriteUpdate
	parents   map[snowflake.ID]snowflake.ID
	sent      map[snowflake.ID][]discord.MessageCreate
	deleted   []snowflake.ID
	bulk      [][]snowflake.ID
	roles     map[snowflake.ID][]snowflake.ID
	history   []discord.Message
	failDM    bool
}

func newFakeDiscord() *fakeDiscord {
	return &fakeDiscord{
		nextID:    1000,
		overwrite: make(map[snowflake.ID]discord.PermissionOverwriteUpdate),
		parents:   make(map[snowflake.ID]snowflake.ID),
		sent:      make(map[snowflake.ID][]discord.MessageCreate),
		roles:     make(map[snowflake.ID][]snowflake.ID),
	}
}

func (f *fakeDiscord) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeDiscord) UpdatePermissionOverwrite(_ snowflake.ID, overwriteID snowflake.ID, u discord.PermissionOverwriteUpdate, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("overwrite")
	f.overwrite[overwriteID] = u
	return nil
}

func (f *fakeDiscord) DeletePermissionOverwrite(_ snowflake.ID, overwriteID snowflake.ID, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("clear")
	delete(f.overwrite, overwriteID)
	return nil
}

func (f *fakeDiscord) UpdateChannel(channelID snowflake.ID, u discord.ChannelUpdate, _ ...rest.RequestOpt) (discord.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("channel")
	if tu, ok := u.(discord.GuildTextChannelUpdate); ok && tu.ParentID != nil {
		f.parents[channelID] = *tu.ParentID
	}
	return nil, nil
}

func (f *fakeDiscord) CreateMessage(channelID snowflake.ID, m discord.MessageCreate, _ ...rest.RequestOpt) (*discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("send")
	f.nextID++
	f.sent[channelID] = append(f.sent[channelID], m)
	return &discord.Message{ID: f.nextID, ChannelID: channelID}, nil
}

func (f *fakeDiscord) DeleteMessage(_ snowflake.ID, messageID snowflake.ID, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete")
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeDiscord) GetMessages(_ snowflake.ID, _, before, _ snowflake.ID, limit int, _ ...rest.RequestOpt) ([]discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("history")
	if before != 0 {
		return nil, nil
	}
	if len(f.history) > limit {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeDiscord) BulkDeleteMessages(_ snowflake.ID, ids []snowflake.ID, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("bulk")
	f.bulk = append(f.bulk, ids)
	return nil
}

func (f *fakeDiscord) CreateDMChannel(userID snowflake.ID, _ ...rest.RequestOpt) (*discord.DMChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("dm")
	if f.failDM {
		return nil, errors.New("cannot send messages to this user")
	}
	return &discord.DMChannel{}, nil
}

func (f *fakeDiscord) AddMemberRole(_ snowflake.ID, userID snowflake.ID, roleID snowflake.ID, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("add_role")
	f.roles[userID] = append(f.roles[userID], roleID)
	return nil
}

func (f *fakeDiscord) RemoveMemberRole(_ snowflake.ID, userID snowflake.ID, roleID snowflake.ID, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove_role")
	kept := f.roles[userID][:0]
	for _, r := range f.roles[userID] {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	f.roles[userID] = kept
	return nil
}

type recordedRef struct {
	owner    string
	track    slots.Track
	replaced string
	ref      string
}

type fakeRecorder struct {
	mu    sync.Mutex
	refs  []recordedRef
	stale []slots.Effect
}

func (r *fakeRecorder) RecordMessageRef(_ context.Context, owner string, track slots.Track, replaced, ref string) ([]slots.Effect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs, recordedRef{owner, track, replaced, ref})
	stale := r.stale
	r.stale = nil
	return stale, nil
}

func testDirectory() *Directory {
	return &Directory{
		GuildID:   1,
		SelfID:    2,
		AdminLog:  50,
		PingReset: 60,
		Roles: map[slots.Role]snowflake.ID{
			slots.RoleAccess: 11,
			slots.RoleStaff:  12,
			slots.RoleElite:  13,
		},
		Categories: map[slots.Category]snowflake.ID{
			"elite":               21,
			slots.CategoryRevoked: 22,
		},
	}
}

func newTestExecutor(f *fakeDiscord, rec Recorder) *Executor {
	return NewExecutor(f, testDirectory(), rec, WithRateLimit(1000, 100), WithConcurrency(2))
}

func TestExecutor_Grant(t *testing.T) {
	f := newFakeDiscord()
	x := newTestExecutor(f, nil)
	defer x.Close()

	batch := slots.Batch{OwnerID: "100", Effects: []slots.Effect{
		{Kind: slots.EffectGrant, ChannelRef: "200", Subject: slots.User("100"), Allow: slots.CapView | slots.CapSend},
		{Kind: slots.EffectGrant, ChannelRef: "200", Subject: slots.Everyone, Deny: slots.CapView},
		{Kind: slots.EffectGrant, ChannelRef: "200", Subject: slots.RoleSubject(slots.RoleHidden), Deny: slots.CapView},
	}}

	report, err := x.Apply(context.Background(), batch)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !reflect.DeepEqual(report, Report{Applied: 2, Skipped: 1}) {
		t.Errorf("Apply() report = %+v, want 2 applied 1 skipped", report)
	}

	memberAllow := discord.PermissionViewChannel | discord.PermissionSendMessages
	everyoneDeny := discord.PermissionViewChannel
	var zero discord.Permissions
	wantMember := discord.MemberPermissionOverwriteUpdate{Allow: &memberAllow, Deny: &zero}
	if got := f.overwrite[100]; !reflect.DeepEqual(got, wantMember) {
		t.Errorf("member overwrite got = %#v, want %#v", got, wantMember)
	}
	wantEveryone := discord.RolePermissionOverwriteUpdate{Allow: &zero, Deny: &everyoneDeny}
	if got := f.overwrite[1]; !reflect.DeepEqual(got, wantEveryone) {
		t.Errorf("everyone overwrite got = %#v, want %#v", got, wantEveryone)
	}
}

func TestExecutor_TrackedSend(t *testing.T) {
	f := newFakeDiscord()
	rec := &fakeRecorder{}
	x := newTestExecutor(f, rec)
	defer x.Close()

	n := slots.Notice{Template: slots.TemplateWelcome, OwnerID: "100", Plan: slots.PlanElite}
	_, err := x.Apply(context.Background(), slots.Batch{OwnerID: "100", Effects: []slots.Effect{
		{Kind: slots.EffectSendMessage, OwnerID: "100", ChannelRef: "200", Notice: &n, Track: slots.TrackWelcome},
	}})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := []recordedRef{{owner: "100", track: slots.TrackWelcome, ref: "1001"}}
	if !reflect.DeepEqual(rec.refs, want) {
		t.Errorf("recorded refs got = %v, want %v", rec.refs, want)
	}
	sent := f.sent[200]
	if len(sent) != 1 || len(sent[0].Components) != 1 {
		t.Fatalf("welcome message got = %+v, want one message with a key button", sent)
	}
	if !reflect.DeepEqual(sent[0].AllowedMentions.Users, []snowflake.ID{100}) {
		t.Errorf("welcome mentions got = %v, want owner only", sent[0].AllowedMentions.Users)
	}
}

func TestExecutor_TTLDelete(t *testing.T) {
	f := newFakeDiscord()
	x := newTestExecutor(f, nil)
	defer x.Close()

	n := slots.Notice{Template: slots.TemplatePingUsed, OwnerID: "100"}
	_, _ = x.Apply(context.Background(), slots.Batch{OwnerID: "100", Effects: []slots.Effect{
		{Kind: slots.EffectSendMessage, OwnerID: "100", ChannelRef: "200", Notice: &n, TTL: 10 * time.Millisecond},
	}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		done := len(f.deleted) == 1
		f.mu.Unlock()
		if done {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("TTL delete got = %v, want message 1001 deleted", f.deleted)
}

func TestExecutor_RevokeLayout(t *testing.T) {
	f := newFakeDiscord()
	x := newTestExecutor(f, nil)
	defer x.Close()

	report, _ := x.Apply(context.Background(), slots.Batch{OwnerID: "100", Effects: []slots.Effect{
		{Kind: slots.EffectClearOverwrite, ChannelRef: "200", Subject: slots.User("100")},
		{Kind: slots.EffectRelocate, ChannelRef: "200", Category: slots.CategoryRevoked},
		{Kind: slots.EffectRemoveRole, UserID: "100", Role: slots.RoleAccess},
		{Kind: slots.EffectRemoveRole, UserID: "100", Role: slots.RoleOnHold},
	}})

	if f.parents[200] != 22 {
		t.Errorf("relocate got parent = %v, want 22", f.parents[200])
	}
	if report.Applied != 3 || report.Skipped != 1 {
		t.Errorf("Apply() report = %+v, want 3 applied 1 skipped", report)
	}
}

func TestExecutor_Purge(t *testing.T) {
	f := newFakeDiscord()
	now := time.Now()
	recent := func(offset time.Duration) snowflake.ID { return snowflake.New(now.Add(-offset)) }
	keep := recent(time.Hour)
	f.history = []discord.Message{
		{ID: recent(time.Minute)},
		{ID: recent(2 * time.Minute)},
		{ID: keep},
		{ID: recent(2 * time.Hour), Pinned: true},
		{ID: snowflake.New(now.Add(-30 * 24 * time.Hour))},
	}
	x := newTestExecutor(f, nil)
	defer x.Close()

	_, _ = x.Apply(context.Background(), slots.Batch{OwnerID: "100", Effects: []slots.Effect{
		{Kind: slots.EffectPurge, ChannelRef: "200", MessageRef: keep.String()},
	}})

	if len(f.bulk) != 1 || len(f.bulk[0]) != 2 {
		t.Errorf("bulk delete got = %v, want one call with the two recent messages", f.bulk)
	}
	if len(f.deleted) != 1 || f.deleted[0] != f.history[4].ID {
		t.Errorf("single delete got = %v, want the old message", f.deleted)
	}
}

func TestExecutor_AnnounceReplacesPrevious(t *testing.T) {
	f := newFakeDiscord()
	x := newTestExecutor(f, nil)
	defer x.Close()

	n := slots.Notice{Template: slots.TemplateQuotaReset, Count: 3, Mention: slots.RoleAccess}
	batch := slots.Batch{Effects: []slots.Effect{{Kind: slots.EffectAnnounce, Notice: &n}}}

	_, _ = x.Apply(context.Background(), batch)
	_, _ = x.Apply(context.Background(), batch)

	if len(f.sent[60]) != 2 {
		t.Fatalf("announcements got = %d, want 2", len(f.sent[60]))
	}
	if !reflect.DeepEqual(f.deleted, []snowflake.ID{1001}) {
		t.Errorf("deleted got = %v, want first announcement", f.deleted)
	}
	if got := f.sent[60][0].Content; got != "<@&11>" {
		t.Errorf("announcement content got = %q, want access role mention", got)
	}
}

func TestExecutor_AnnounceAfterRestart(t *testing.T) {
	announcement := func(id, author snowflake.ID, title string) discord.Message {
		return discord.Message{
			ID:     id,
			Author: discord.User{ID: author},
			Embeds: []discord.Embed{{Title: title}},
		}
	}
	tests := []struct {
		name    string
		history []discord.Message
		want    []snowflake.ID
	}{
		{
			name: "Newest own announcement",
			history: []discord.Message{
				announcement(900, 2, "Pings reset"),
				announcement(950, 77, "Pings reset"),
				announcement(940, 2, "Slot revoked"),
				announcement(920, 2, "Pings reset"),
			},
			want: []snowflake.ID{920},
		},
		{
			name: "Nothing to replace",
			history: []discord.Message{
				announcement(950, 77, "Pings reset"),
				{ID: 960, Author: discord.User{ID: 2}},
			},
		},
		{
			name: "Empty channel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeDiscord()
			f.history = tt.history
			x := newTestExecutor(f, nil)
			defer x.Close()

			n := slots.Notice{Template: slots.TemplateQuotaReset, Count: 1}
			report, err := x.Apply(context.Background(), slots.Batch{Effects: []slots.Effect{{Kind: slots.EffectAnnounce, Notice: &n}}})
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if report.Applied != 1 {
				t.Errorf("Apply() report = %+v, want 1 applied", report)
			}
			if !reflect.DeepEqual(f.deleted, tt.want) {
				t.Errorf("deleted got = %v, want %v", f.deleted, tt.want)
			}
			if len(f.sent[60]) != 1 {
				t.Errorf("announcements got = %d, want 1", len(f.sent[60]))
			}
		})
	}
}

func TestExecutor_TrackedSendDeletesSuperseded(t *testing.T) {
	f := newFakeDiscord()
	rec := &fakeRecorder{stale: []slots.Effect{
		{Kind: slots.EffectDeleteMessage, OwnerID: "100", ChannelRef: "200", MessageRef: "555"},
	}}
	x := newTestExecutor(f, rec)
	defer x.Close()

	n := slots.Notice{Template: slots.TemplateUsage, OwnerID: "100"}
	report, err := x.Apply(context.Background(), slots.Batch{OwnerID: "100", Effects: []slots.Effect{
		{Kind: slots.EffectSendMessage, OwnerID: "100", ChannelRef: "200", Notice: &n, Track: slots.TrackSticky, MessageRef: "444"},
	}})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied != 1 {
		t.Errorf("Apply() report = %+v, want 1 applied", report)
	}

	want := []recordedRef{{owner: "100", track: slots.TrackSticky, replaced: "444", ref: "1001"}}
	if !reflect.DeepEqual(rec.refs, want) {
		t.Errorf("recorded refs got = %v, want %v", rec.refs, want)
	}
	if !reflect.DeepEqual(f.deleted, []snowflake.ID{555}) {
		t.Errorf("deleted got = %v, want superseded sticky 555", f.deleted)
	}
}

func TestExecutor_FailedDMDoesNotStopBatch(t *testing.T) {
	f := newFakeDiscord()
	f.failDM = true
	x := newTestExecutor(f, nil)
	defer x.Close()

	n := slots.Notice{Template: slots.TemplateRevoked, OwnerID: "100"}
	report, err := x.Apply(context.Background(), slots.Batch{OwnerID: "100", Effects: []slots.Effect{
		{Kind: slots.EffectDirectMessage, UserID: "100", Notice: &n},
		{Kind: slots.EffectAdminLog, Notice: &n},
	}})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Failed != 1 || report.Applied != 1 {
		t.Errorf("Apply() report = %+v, want 1 failed 1 applied", report)
	}
	if len(f.sent[50]) != 1 {
		t.Errorf("admin log got = %d messages, want 1", len(f.sent[50]))
	}
}

func TestExecutor_ParallelBatches(t *testing.T) {
	f := newFakeDiscord()
	x := newTestExecutor(f, nil)
	defer x.Close()

	var batches []slots.Batch
	for i := 0; i < 10; i++ {
		owner := snowflake.ID(100 + i).String()
		batches = append(batches, slots.Batch{OwnerID: owner, Effects: []slots.Effect{
			{Kind: slots.EffectAddRole, UserID: owner, Role: slots.RoleAccess},
		}})
	}
	report, err := x.Apply(context.Background(), batches...)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied != 10 {
		t.Errorf("Apply() applied = %d, want 10", report.Applied)
	}
}
