package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/morezero/cephapi/pkg/db"
	"github.com/morezero/cephapi/pkg/events"
	"github.com/morezero/cephapi/pkg/registry"
	"github.com/morezero/cephapi/pkg/schema"
	"github.com/morezero/cephapi/pkg/transport"
)

func newTestRegistry(t *testing.T, schemas ...schema.CommandSchema) *registry.Registry {
	t.Helper()
	reg := registry.New("test")
	for _, s := range schemas {
		if err := reg.Register(s); err != nil {
			t.Fatalf("dispatcher:dispatcher_test - Register(%s): %v", s.Name, err)
		}
	}
	reg.Seal()
	return reg
}

var osdTree = schema.CommandSchema{Name: "osd_tree", Prefix: "osd tree", Module: "osd", Params: []schema.Param{}}

var osdPoolCreate = schema.CommandSchema{
	Name:   "osd_pool_create",
	Prefix: "osd pool create",
	Module: "osd",
	Params: []schema.Param{
		{Name: "pool", Type: schema.TypePoolname, Required: true},
		{Name: "pg_num", Type: schema.TypeInt, Required: true, Range: "0"},
		{Name: "pool_type", Type: schema.TypeChoices, Choices: "replicated|erasure"},
	},
}

type memAudit struct {
	mu   sync.Mutex
	recs []*db.AuditRecord
	err  error
}

func (m *memAudit) RecordDispatch(_ context.Context, rec *db.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return m.err
}

func TestDispatch_OsdTreeSuccess(t *testing.T) {
	stub := transport.NewStaticAdmin(`{"nodes": []}`)
	d := New(Params{Registry: newTestRegistry(t, osdTree), Admin: stub})

	res, err := d.Dispatch(context.Background(), "osd_tree", map[string]interface{}{})
	if err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Dispatch: %v", err)
	}
	if !res.OK() {
		t.Fatalf("dispatcher:dispatcher_test - unexpected failure %+v", res.Failure)
	}
	want := map[string]interface{}{"nodes": []interface{}{}}
	if !reflect.DeepEqual(res.Payload, want) {
		t.Errorf("dispatcher:dispatcher_test - payload = %#v, want %#v", res.Payload, want)
	}

	var sent map[string]interface{}
	if err := json.Unmarshal(stub.LastCommand(), &sent); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - sent command is not JSON: %v", err)
	}
	if sent["prefix"] != "osd tree" || sent["format"] != "json" || len(sent) != 2 {
		t.Errorf("dispatcher:dispatcher_test - sent command = %v", sent)
	}
}

func TestDispatch_UnknownCommandNeverCallsAdmin(t *testing.T) {
	stub := transport.NewStaticAdmin(`{}`)
	d := New(Params{Registry: newTestRegistry(t, osdTree), Admin: stub})

	_, err := d.Dispatch(context.Background(), "nonexistent", map[string]interface{}{})
	if registry.Code(err) != registry.CodeUnknownCommand {
		t.Fatalf("dispatcher:dispatcher_test - err = %v, want UNKNOWN_COMMAND", err)
	}
	if stub.Calls() != 0 {
		t.Errorf("dispatcher:dispatcher_test - stub called %d times", stub.Calls())
	}
}

func TestDispatch_InvalidArguments(t *testing.T) {
	tests := []struct {
		name      string
		args      map[string]interface{}
		wantParam string
	}{
		{"missing required", map[string]interface{}{"pg_num": 8}, "pool"},
		{"first failure in declaration order", map[string]interface{}{"pool": 3, "pg_num": "x"}, "pool"},
		{"wrong type", map[string]interface{}{"pool": "rbd", "pg_num": "eight"}, "pg_num"},
		{"out of range", map[string]interface{}{"pool": "rbd", "pg_num": -1}, "pg_num"},
		{"bad choice", map[string]interface{}{"pool": "rbd", "pg_num": 8, "pool_type": "mirrored"}, "pool_type"},
		{"undeclared", map[string]interface{}{"pool": "rbd", "pg_num": 8, "size": 3}, "size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := transport.NewStaticAdmin(``)
			d := New(Params{Registry: newTestRegistry(t, osdPoolCreate), Admin: stub})

			_, err := d.Dispatch(context.Background(), "osd_pool_create", tt.args)
			var ce *registry.CommandError
			if !errors.As(err, &ce) || ce.Code != registry.CodeInvalidArgument {
				t.Fatalf("dispatcher:dispatcher_test - err = %v, want INVALID_ARGUMENT", err)
			}
			if ce.Param != tt.wantParam {
				t.Errorf("dispatcher:dispatcher_test - param = %q, want %q", ce.Param, tt.wantParam)
			}
			if stub.Calls() != 0 {
				t.Error("dispatcher:dispatcher_test - invalid arguments must not reach the admin interface")
			}
		})
	}
}

func TestDispatch_SerializesValidatedArgs(t *testing.T) {
	stub := transport.NewStaticAdmin(``)
	d := New(Params{Registry: newTestRegistry(t, osdPoolCreate), Admin: stub})

	res, err := d.Dispatch(context.Background(), "osd_pool_create", map[string]interface{}{
		"pool":   "rbd",
		"pg_num": json.Number("64"),
	})
	if err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Dispatch: %v", err)
	}
	if res.Payload != nil {
		t.Errorf("dispatcher:dispatcher_test - empty outbuf should give nil payload, got %#v", res.Payload)
	}

	var sent map[string]interface{}
	if err := json.Unmarshal(stub.LastCommand(), &sent); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - unmarshal: %v", err)
	}
	if sent["prefix"] != "osd pool create" || sent["pool"] != "rbd" || sent["pg_num"] != float64(64) {
		t.Errorf("dispatcher:dispatcher_test - sent = %v", sent)
	}
	if _, ok := sent["pool_type"]; ok {
		t.Error("dispatcher:dispatcher_test - absent optional param without default should not be sent")
	}
}

func TestDispatch_TransportErrorNotRetried(t *testing.T) {
	cause := errors.New("connection refused")
	stub := transport.NewStubAdmin(func(context.Context, []byte, []byte) (*transport.Reply, error) {
		return nil, cause
	})
	d := New(Params{Registry: newTestRegistry(t, osdTree), Admin: stub})

	_, err := d.Dispatch(context.Background(), "osd_tree", nil)
	if registry.Code(err) != registry.CodeTransportError {
		t.Fatalf("dispatcher:dispatcher_test - err = %v, want TRANSPORT_ERROR", err)
	}
	if !errors.Is(err, cause) {
		t.Error("dispatcher:dispatcher_test - TRANSPORT_ERROR should wrap the cause")
	}
	if stub.Calls() != 1 {
		t.Errorf("dispatcher:dispatcher_test - stub called %d times, want 1", stub.Calls())
	}
}

func TestDispatch_MalformedResponse(t *testing.T) {
	d := New(Params{Registry: newTestRegistry(t, osdTree), Admin: transport.NewStaticAdmin(`{"nodes": [`)})

	_, err := d.Dispatch(context.Background(), "osd_tree", nil)
	if registry.Code(err) != registry.CodeMalformedResponse {
		t.Fatalf("dispatcher:dispatcher_test - err = %v, want MALFORMED_RESPONSE", err)
	}
}

func TestDispatch_RemoteFailure(t *testing.T) {
	tests := []struct {
		name    string
		reply   *transport.Reply
		wantMsg string
	}{
		{"with outs", &transport.Reply{Status: -2, Outs: "pool 'x' does not exist"}, "pool 'x' does not exist"},
		{"without outs", &transport.Reply{Status: -22}, transport.Strerror(-22)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := transport.NewStubAdmin(func(context.Context, []byte, []byte) (*transport.Reply, error) {
				return tt.reply, nil
			})
			d := New(Params{Registry: newTestRegistry(t, osdTree), Admin: stub})

			res, err := d.Dispatch(context.Background(), "osd_tree", nil)
			if err != nil {
				t.Fatalf("dispatcher:dispatcher_test - remote failure should not be an error: %v", err)
			}
			if res.OK() || res.Failure.Code != tt.reply.Status || res.Failure.Message != tt.wantMsg {
				t.Errorf("dispatcher:dispatcher_test - failure = %+v", res.Failure)
			}
		})
	}
}

func TestDispatchInput_PassesInbuf(t *testing.T) {
	setcrush := schema.CommandSchema{Name: "osd_setcrushmap", Prefix: "osd setcrushmap", Params: []schema.Param{}}
	var got []byte
	stub := transport.NewStubAdmin(func(_ context.Context, _ []byte, inbuf []byte) (*transport.Reply, error) {
		got = inbuf
		return &transport.Reply{Outs: "set crush map"}, nil
	})
	d := New(Params{Registry: newTestRegistry(t, setcrush), Admin: stub})

	res, err := d.DispatchInput(context.Background(), "osd_setcrushmap", nil, []byte("crushmap-bytes"))
	if err != nil {
		t.Fatalf("dispatcher:dispatcher_test - DispatchInput: %v", err)
	}
	if string(got) != "crushmap-bytes" {
		t.Errorf("dispatcher:dispatcher_test - inbuf = %q", got)
	}
	if res.Message != "set crush map" {
		t.Errorf("dispatcher:dispatcher_test - message = %q", res.Message)
	}
}

func TestDispatch_RoundTripEchoedPayload(t *testing.T) {
	echo := transport.NewStubAdmin(func(_ context.Context, cmd []byte, _ []byte) (*transport.Reply, error) {
		return &transport.Reply{Outbuf: cmd}, nil
	})
	d := New(Params{Registry: newTestRegistry(t, osdPoolCreate), Admin: echo})

	res, err := d.Dispatch(context.Background(), "osd_pool_create", map[string]interface{}{"pool": "rbd", "pg_num": 8})
	if err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Dispatch: %v", err)
	}
	if string(res.Raw) != string(echo.LastCommand()) {
		t.Errorf("dispatcher:dispatcher_test - raw = %s, want %s", res.Raw, echo.LastCommand())
	}
	m, ok := res.Payload.(map[string]interface{})
	if !ok || m["pool"] != "rbd" || m["pg_num"] != json.Number("8") {
		t.Errorf("dispatcher:dispatcher_test - payload = %#v", res.Payload)
	}
}

func TestDispatch_EventsAndAudit(t *testing.T) {
	var mu sync.Mutex
	var got []*events.DispatchEvent
	pub := events.NewCallbackPublisher(func(_ context.Context, e *events.DispatchEvent) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
		return errors.New("publish failures are ignored")
	})
	audit := &memAudit{err: errors.New("audit failures are ignored")}
	stub := transport.NewStubAdmin(func(_ context.Context, cmd []byte, _ []byte) (*transport.Reply, error) {
		return &transport.Reply{Status: -1, Outs: "denied"}, nil
	})
	d := New(Params{Registry: newTestRegistry(t, osdTree), Admin: stub, Publisher: pub, Audit: audit})

	if _, err := d.Dispatch(context.Background(), "osd_tree", nil); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Dispatch: %v", err)
	}
	if _, err := d.Dispatch(context.Background(), "missing", nil); err == nil {
		t.Fatal("dispatcher:dispatcher_test - expected error")
	}

	if len(got) != 2 || len(audit.recs) != 2 {
		t.Fatalf("dispatcher:dispatcher_test - events=%d audits=%d, want 2 each", len(got), len(audit.recs))
	}
	if got[0].Outcome != events.OutcomeFailure || got[0].Code != "-1" || got[0].Prefix != "osd tree" || got[0].Release != "test" {
		t.Errorf("dispatcher:dispatcher_test - event[0] = %+v", got[0])
	}
	if got[1].Outcome != events.OutcomeError || got[1].Code != registry.CodeUnknownCommand {
		t.Errorf("dispatcher:dispatcher_test - event[1] = %+v", got[1])
	}
	if audit.recs[0].RequestID == "" || audit.recs[0].RequestID != got[0].ID {
		t.Errorf("dispatcher:dispatcher_test - audit request id %q, event id %q", audit.recs[0].RequestID, got[0].ID)
	}
	if audit.recs[0].Message != "denied" {
		t.Errorf("dispatcher:dispatcher_test - audit message = %q", audit.recs[0].Message)
	}
}

func TestDispatch_Concurrent(t *testing.T) {
	d := New(Params{Registry: newTestRegistry(t, osdTree), Admin: transport.NewStaticAdmin(`{"nodes": []}`)})

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Dispatch(context.Background(), "osd_tree", nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("dispatcher:dispatcher_test - concurrent Dispatch: %v", err)
	}
}

func TestBuildCommand(t *testing.T) {
	s := &schema.CommandSchema{Name: "status"}
	cmd, err := BuildCommand(s, map[string]interface{}{"detail": "detail"})
	if err != nil {
		t.Fatalf("dispatcher:dispatcher_test - BuildCommand: %v", err)
	}
	if string(cmd) != `{"detail":"detail","format":"json","prefix":"status"}` {
		t.Errorf("dispatcher:dispatcher_test - BuildCommand = %s", cmd)
	}
}
