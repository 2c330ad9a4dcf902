package job_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"kiln/internal/content"
	"kiln/internal/job"
	"kiln/internal/registry"
	"kiln/internal/serializer"
)

var ctx = context.Background()

func TestNewJobWithData(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.NewJob([]byte("eggheads"))
	if got := mustData(t, j); got != "eggheads" {
		t.Fatalf("data = %q", got)
	}
}

func TestNewJobStartsEmpty(t *testing.T) {
	env := newTestEnv(t)
	c := env.engine.NewJob(nil).Content()
	if len(c.Data()) != 0 || len(c.Meta()) != 0 {
		t.Fatalf("expected empty content, got %q %v", c.Data(), c.Meta())
	}
}

func TestFetchRetrievesFromDatastore(t *testing.T) {
	env := newTestEnv(t)
	env.store.put("some_uid", "DATA", map[string]any{"name": "a.txt"})
	j := env.engine.NewJob(nil)
	if j.AddFetch("some_uid") != j {
		t.Fatal("AddFetch should return the receiver")
	}
	if got := kinds(j.Steps()); !reflect.DeepEqual(got, []job.Kind{job.KindFetch}) {
		t.Fatalf("steps = %v", got)
	}
	mustApply(t, j)
	if !reflect.DeepEqual(env.store.retrieved, []string{"some_uid"}) {
		t.Fatalf("retrieved = %v", env.store.retrieved)
	}
	name, err := j.Name(ctx)
	if err != nil || name != "a.txt" {
		t.Fatalf("name = %q, %v", name, err)
	}
}

func TestFetchWithoutDatastore(t *testing.T) {
	env := newTestEnv(t, func(o *job.Options) { o.Datastore = nil })
	_, err := env.engine.Fetch("x").Apply(ctx)
	if !errors.Is(err, job.ErrNoDatastore) {
		t.Fatalf("expected ErrNoDatastore, got %v", err)
	}
}

func TestGenerateUsesGeneratorAndHook(t *testing.T) {
	env := newTestEnv(t)
	var gotArgs []any
	rec := &hookRecorder{}
	env.reg.AddGenerator("plasma", registry.GeneratorWithURLUpdate(
		registry.GeneratorFunc(func(_ context.Context, c *content.Content, args ...any) error {
			gotArgs = args
			c.Update([]byte("plasma!"), nil)
			return nil
		}), rec.hook))

	j := env.engine.NewJob(nil).AddGenerate("plasma", 20)
	if len(rec.calls) != 1 || !reflect.DeepEqual(rec.calls[0], []any{int64(20)}) {
		t.Fatalf("hook calls = %v", rec.calls)
	}
	if !reflect.DeepEqual(rec.attrs[0], j.URLAttrs()) {
		t.Fatal("hook should receive the job's url attrs")
	}
	if gotArgs != nil {
		t.Fatal("generator ran before apply")
	}
	if got := mustData(t, j); got != "plasma!" {
		t.Fatalf("data = %q", got)
	}
	if !reflect.DeepEqual(gotArgs, []any{int64(20)}) {
		t.Fatalf("generator args = %v", gotArgs)
	}
	if got := kinds(j.Steps()); !reflect.DeepEqual(got, []job.Kind{job.KindGenerate}) {
		t.Fatalf("steps = %v", got)
	}
}

func TestFetchFile(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "egg.png")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 62)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	j := env.engine.NewJob(nil).AddFetchFile(path)
	if got := j.URLAttrs().Name(); got != "egg.png" {
		t.Fatalf("url attr name = %q", got)
	}
	size, err := j.Size(ctx)
	if err != nil || size != 62 {
		t.Fatalf("size = %d, %v", size, err)
	}
	name, _ := j.Name(ctx)
	if name != "egg.png" {
		t.Fatalf("name = %q", name)
	}
}

func TestFetchFileMissing(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.FetchFile(filepath.Join(t.TempDir(), "nope.png"))
	if _, err := j.Apply(ctx); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if len(j.PendingSteps()) != 1 {
		t.Fatal("failing step should stay pending")
	}
}

func fetchHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch host := r.Header.Get("X-Original-Host"); host {
		case "notfound.com":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("BLAH"))
		case "error.com":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("BLAH"))
		case "redirectme.com":
			http.Redirect(w, r, "http://ok.com/", http.StatusFound)
		case "ok.com":
			_, _ = w.Write([]byte("OK!"))
		default:
			if r.Header.Get("X-Original-Scheme") == "https" {
				_, _ = w.Write([]byte("secure result!"))
				return
			}
			_, _ = w.Write([]byte("result!"))
		}
	})
}

func TestFetchURL(t *testing.T) {
	env := newTestEnv(t, withServer(t, fetchHandler(t)))

	j := env.engine.NewJob(nil).AddFetchURL("some.url")
	if got := kinds(j.Steps()); !reflect.DeepEqual(got, []job.Kind{job.KindFetchURL}) {
		t.Fatalf("steps = %v", got)
	}

	cases := map[string]string{
		"http://some.place.com":  "result!",
		"some.place.com":         "result!",
		"https://some.place.com": "secure result!",
		"redirectme.com":         "OK!",
	}
	for raw, want := range cases {
		if got := mustData(t, env.engine.FetchURL(raw)); got != want {
			t.Fatalf("FetchURL(%q) data = %q, want %q", raw, got, want)
		}
	}
}

func TestFetchURLName(t *testing.T) {
	env := newTestEnv(t, withServer(t, fetchHandler(t)))
	j := env.engine.FetchURL("some.place.com/dung.beetle")
	if got := j.URLAttrs().Name(); got != "dung.beetle" {
		t.Fatalf("url attr name = %q", got)
	}
	if name, _ := j.Name(ctx); name != "dung.beetle" {
		t.Fatalf("name = %q", name)
	}

	for _, raw := range []string{"some.place.com", "some.place.com/", "some.place.com/eggs/"} {
		j := env.engine.FetchURL(raw)
		if got := j.URLAttrs().Name(); got != "" {
			t.Fatalf("%s: url attr name = %q", raw, got)
		}
		if name, _ := j.Name(ctx); name != "" {
			t.Fatalf("%s: name = %q", raw, name)
		}
	}
}

func TestFetchURLErrorResponses(t *testing.T) {
	env := newTestEnv(t, withServer(t, fetchHandler(t)))
	for host, status := range map[string]int{"notfound.com": 404, "error.com": 500} {
		_, err := env.engine.FetchURL(host).Apply(ctx)
		var resp *job.ErrorResponse
		if !errors.As(err, &resp) {
			t.Fatalf("%s: expected ErrorResponse, got %v", host, err)
		}
		if resp.Status != status || resp.Body != "BLAH" {
			t.Fatalf("%s: status=%d body=%q", host, resp.Status, resp.Body)
		}
	}
}

func TestFetchURLDataURI(t *testing.T) {
	env := newTestEnv(t)
	if got := mustData(t, env.engine.FetchURL("data:text/plain;base64,aGVsbG8=")); got != "hello" {
		t.Fatalf("data = %q", got)
	}
}

func TestApplyReturnsItself(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.NewJob(nil)
	got, err := j.Apply(ctx)
	if err != nil || got != j {
		t.Fatalf("Apply = %p, %v; want %p", got, err, j)
	}
}

func TestProcessUsesProcessorAndHook(t *testing.T) {
	env := newTestEnv(t)
	var gotArgs []any
	rec := &hookRecorder{}
	env.reg.AddProcessor("resize", registry.WithURLUpdate(
		registry.ProcessorFunc(func(_ context.Context, _ *content.Content, args ...any) error {
			gotArgs = args
			return nil
		}), rec.hook))

	j := env.engine.NewJob(nil).AddProcess("resize", "20x30")
	if len(rec.calls) != 1 || !reflect.DeepEqual(rec.calls[0], []any{"20x30"}) {
		t.Fatalf("hook calls = %v", rec.calls)
	}
	mustApply(t, j)
	if !reflect.DeepEqual(gotArgs, []any{"20x30"}) {
		t.Fatalf("processor args = %v", gotArgs)
	}
}

func TestUnknownProcessorFailsAtApply(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.NewJob(nil).AddProcess("nope")
	_, err := j.Apply(ctx)
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func registerNumLetters(env *testEnv) {
	env.reg.AddAnalyser("num_letters", registry.AnalyserFunc(func(_ context.Context, c *content.Content, args ...any) (any, error) {
		letter, _ := args[0].(string)
		return strings.Count(string(c.Data()), letter), nil
	}))
}

func TestAnalyse(t *testing.T) {
	env := newTestEnv(t)
	registerNumLetters(env)
	env.reg.AddProcessor("double", registry.ProcessorFunc(func(_ context.Context, c *content.Content, _ ...any) error {
		c.Update(append(append([]byte(nil), c.Data()...), c.Data()...), nil)
		return nil
	}))
	j := env.engine.NewJob([]byte("HELLO"))
	if got, err := j.Analyse(ctx, "num_letters", "L"); err != nil || got != 2 {
		t.Fatalf("Analyse = %v, %v", got, err)
	}
	if got, err := j.Process("double").Analyse(ctx, "num_letters", "L"); err != nil || got != 4 {
		t.Fatalf("chained Analyse = %v, %v", got, err)
	}
	if _, err := j.Analyse(ctx, "missing"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStepsAddedAfterApplying(t *testing.T) {
	env := newTestEnv(t)
	calls := map[string]int{}
	for _, name := range []string{"resize", "encode"} {
		env.reg.AddProcessor(name, registry.ProcessorFunc(func(context.Context, *content.Content, ...any) error {
			calls[name]++
			return nil
		}))
	}
	j := env.engine.NewJob(nil).AddProcess("resize")
	mustApply(t, j)
	j.AddProcess("encode")

	names := func(steps []*job.Step) []string {
		var out []string
		for _, s := range steps {
			out = append(out, s.Name())
		}
		return out
	}
	if got := names(j.Steps()); !reflect.DeepEqual(got, []string{"resize", "encode"}) {
		t.Fatalf("steps = %v", got)
	}
	if got := names(j.AppliedSteps()); !reflect.DeepEqual(got, []string{"resize"}) {
		t.Fatalf("applied = %v", got)
	}
	if got := names(j.PendingSteps()); !reflect.DeepEqual(got, []string{"encode"}) {
		t.Fatalf("pending = %v", got)
	}
	mustApply(t, j)
	mustApply(t, j)
	if calls["resize"] != 1 || calls["encode"] != 1 {
		t.Fatalf("calls = %v", calls)
	}
}

func TestPartialFailureResumes(t *testing.T) {
	env := newTestEnv(t)
	env.store.put("uid", "SOURCE", nil)
	fail := true
	runs := 0
	env.reg.AddProcessor("flaky", registry.ProcessorFunc(func(_ context.Context, c *content.Content, _ ...any) error {
		runs++
		c.Update([]byte("partial write"), nil)
		if fail {
			return errors.New("boom")
		}
		c.Update([]byte("DONE"), nil)
		return nil
	}))
	j := env.engine.Fetch("uid").AddProcess("flaky")
	if _, err := j.Apply(ctx); err == nil {
		t.Fatal("expected failure")
	}
	if len(j.AppliedSteps()) != 1 || len(j.PendingSteps()) != 1 {
		t.Fatalf("applied=%d pending=%d", len(j.AppliedSteps()), len(j.PendingSteps()))
	}
	if got := string(j.Content().Data()); got != "SOURCE" {
		t.Fatalf("failed step leaked a partial write: %q", got)
	}
	fail = false
	if got := mustData(t, j); got != "DONE" {
		t.Fatalf("data = %q", got)
	}
	if len(env.store.retrieved) != 1 || runs != 2 {
		t.Fatalf("retrieved=%v runs=%d", env.store.retrieved, runs)
	}
}

func TestChaining(t *testing.T) {
	env := newTestEnv(t)
	env.reg.AddProcessor("resize", registry.ProcessorFunc(func(_ context.Context, c *content.Content, args ...any) error {
		n := int(args[0].(int64))
		c.Update(c.Data()[:n], nil)
		return nil
	}))
	env.store.put("some_uid", "SOME_DATA", nil)

	j := env.engine.NewJob(nil)
	if j.Fetch("some_uid") == j {
		t.Fatal("Fetch should return a new job")
	}
	j.AddFetch("some_uid")
	j2 := j.Process("resize", 4)

	if len(j.AppliedSteps()) != 0 || !reflect.DeepEqual(kinds(j.PendingSteps()), []job.Kind{job.KindFetch}) {
		t.Fatalf("original steps: applied=%v pending=%v", j.AppliedSteps(), j.PendingSteps())
	}
	if !reflect.DeepEqual(kinds(j2.PendingSteps()), []job.Kind{job.KindFetch, job.KindProcess}) {
		t.Fatalf("chained pending = %v", kinds(j2.PendingSteps()))
	}
	if got := mustData(t, j); got != "SOME_DATA" {
		t.Fatalf("original data = %q", got)
	}
	if got := mustData(t, j2); got != "SOME" {
		t.Fatalf("chained data = %q", got)
	}
	if len(j2.AppliedSteps()) != 2 || len(j.Steps()) != 1 {
		t.Fatal("chained jobs should evolve independently")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.NewJob([]byte("a"))
	j.Content().SetMeta(map[string]any{"nested": map[string]any{"k": "v"}})
	j.URLAttrs().Set("x", "1")
	c := j.Clone()
	c.Content().Update([]byte("b"), map[string]any{"extra": true})
	c.Content().Meta()["nested"].(map[string]any)["k"] = "changed"
	c.URLAttrs().Set("x", "2")
	if string(j.Content().Data()) != "a" || j.Content().Meta()["extra"] != nil {
		t.Fatal("clone content leaked into original")
	}
	if j.Content().Meta()["nested"].(map[string]any)["k"] != "v" {
		t.Fatal("nested meta shared between clones")
	}
	if j.URLAttrs().String("x") != "1" {
		t.Fatal("clone url attrs leaked into original")
	}
}

func TestCopiedJobURLAttrsIndependent(t *testing.T) {
	env := newTestEnv(t)
	j1 := env.engine.NewJob(nil)
	j1.UpdateURLAttrs(map[string]any{"opts": map[string]any{"w": int64(1)}})
	j2 := j1.Fetch("x")
	j2.URLAttrs()["opts"].(map[string]any)["w"] = int64(2)
	if got := j1.URLAttrs()["opts"].(map[string]any)["w"]; got != int64(1) {
		t.Fatalf("original opts = %v after mutating copy", got)
	}
}

func TestCopiedJobArgsIndependent(t *testing.T) {
	env := newTestEnv(t)
	j1 := env.engine.NewJob(nil).AddProcess("p", map[string]any{"a": "1"})
	before, sha := j1.UniqueString(), j1.SHA()
	j2 := j1.Process("q")

	j2.Steps()[0].Args()[1].(map[string]any)["a"] = "evil"
	j2.Steps()[0].Arguments()[0].(map[string]any)["a"] = "evil"
	j2.Steps()[0].ToArray()[2].(map[string]any)["a"] = "evil"
	if j1.UniqueString() != before || j1.SHA() != sha {
		t.Fatalf("original changed through accessors: %q", j1.UniqueString())
	}

	j1.Steps()[0].Args()[1].(map[string]any)["a"] = "evil"
	if j1.UniqueString() != before {
		t.Fatalf("Args exposed internal state: %q", j1.UniqueString())
	}
	if j2.UniqueString() != before+"pq" {
		t.Fatalf("copy unique string = %q", j2.UniqueString())
	}
}

func TestAppliedState(t *testing.T) {
	env := newTestEnv(t)
	if !env.engine.NewJob(nil).Applied() {
		t.Fatal("empty job should be applied")
	}
	env.store.put("eggs", "E", nil)
	j := env.engine.Fetch("eggs")
	if j.Applied() {
		t.Fatal("fetch job should not be applied yet")
	}
	mustApply(t, j)
	if !j.Applied() {
		t.Fatal("job should be applied")
	}
}

func TestToArray(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.NewJob(nil).AddFetch("some_uid").AddGenerate("plasma").AddProcess("resize", "30x40")
	want := [][]any{{"f", "some_uid"}, {"g", "plasma"}, {"p", "resize", "30x40"}}
	if got := j.ToArray(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ToArray = %v", got)
	}
}

func TestFromArray(t *testing.T) {
	env := newTestEnv(t)
	j, err := env.engine.FromArray([][]any{{"f", "some_uid"}, {"g", "plasma"}, {"p", "resize", "30x40"}})
	if err != nil {
		t.Fatalf("FromArray: %v", err)
	}
	if got := kinds(j.Steps()); !reflect.DeepEqual(got, []job.Kind{job.KindFetch, job.KindGenerate, job.KindProcess}) {
		t.Fatalf("kinds = %v", got)
	}
	wantArgs := [][]any{{"some_uid"}, {"plasma"}, {"resize", "30x40"}}
	for i, s := range j.Steps() {
		if !reflect.DeepEqual(s.Args(), wantArgs[i]) {
			t.Fatalf("step %d args = %v", i, s.Args())
		}
	}
	if len(j.AppliedSteps()) != 0 || len(j.PendingSteps()) != 3 {
		t.Fatal("decoded steps should all be pending")
	}

	empty, err := env.engine.FromArray(nil)
	if err != nil || len(empty.Steps()) != 0 {
		t.Fatalf("empty FromArray = %v, %v", empty, err)
	}

	for _, bad := range [][][]any{{{}}, {{"egg"}}, {{1, "x"}}} {
		if _, err := env.engine.FromArray(bad); !errors.Is(err, serializer.ErrInvalidArray) {
			t.Fatalf("FromArray(%v): expected ErrInvalidArray, got %v", bad, err)
		}
	}
}

func TestDeserializeInvalid(t *testing.T) {
	env := newTestEnv(t)
	for _, payload := range []string{`"f"`, `["f"]`, `[[]]`, `[["egg"]]`} {
		token := serializer.B64Encode([]byte(payload))
		if _, err := env.engine.Deserialize(token); !errors.Is(err, serializer.ErrInvalidArray) {
			t.Fatalf("Deserialize(%s): expected ErrInvalidArray, got %v", payload, err)
		}
	}
	j, err := env.engine.Deserialize(serializer.B64Encode([]byte(`[["f"]]`)))
	if err != nil {
		t.Fatalf("bare fetch: %v", err)
	}
	if j.UID() != "" || len(j.Steps()) != 1 {
		t.Fatalf("bare fetch decoded to %v", j.ToArray())
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.NewJob(nil).Fetch("uid").Process("resize_and_crop", map[string]any{"width": 270, "height": 92, "gravity": "n"})
	token, err := j.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !regexp.MustCompile(`^[\w-]+$`).MatchString(token) {
		t.Fatalf("token %q is not url safe", token)
	}
	decoded, err := env.engine.Deserialize(token)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	steps := decoded.Steps()
	if len(steps) != 2 || steps[0].UID() != "uid" || steps[1].Name() != "resize_and_crop" {
		t.Fatalf("decoded = %v", decoded.ToArray())
	}
	wantArgs := []any{map[string]any{"width": int64(270), "height": int64(92), "gravity": "n"}}
	if !reflect.DeepEqual(steps[1].Arguments(), wantArgs) {
		t.Fatalf("arguments = %#v", steps[1].Arguments())
	}
	if !reflect.DeepEqual(decoded.ToArray(), j.ToArray()) {
		t.Fatal("round trip changed the step list")
	}
	if decoded.SHA() != j.SHA() {
		t.Fatal("round trip changed the sha")
	}
}

func TestDeserializeKnownTokens(t *testing.T) {
	env := newTestEnv(t)
	j, err := env.engine.Deserialize("W1siZiIsInNvbWVfdWlkIl1d")
	if err != nil || j.FetchStep().UID() != "some_uid" {
		t.Fatalf("json token: %v %v", j, err)
	}
	j, err = env.engine.Deserialize("BAhbBlsHSSIGZgY6BkVUSSINc29tZV91aWQGOwBU")
	if err != nil || j.FetchStep().UID() != "some_uid" {
		t.Fatalf("legacy token: %v %v", j, err)
	}
	raw := []byte("\x04\x08o:\x0fTempObject\x06:\x0a@data\"\x06a")
	_, err = env.engine.Deserialize(serializer.B64Encode(raw))
	if !errors.Is(err, serializer.ErrMaliciousString) {
		t.Fatalf("expected ErrMaliciousString, got %v", err)
	}
	if !job.IsMalformed(err) {
		t.Fatal("decode errors should be malformed")
	}
}

func TestDeserializeLegacyDisabled(t *testing.T) {
	env := newTestEnv(t, func(o *job.Options) { o.DisableLegacyURLs = true })
	if env.engine.AllowLegacyURLs() {
		t.Fatal("legacy should be disabled")
	}
	_, err := env.engine.Deserialize("BAhbBlsHSSIGZgY6BkVUSSINc29tZV91aWQGOwBU")
	if !errors.Is(err, serializer.ErrBadString) {
		t.Fatalf("expected ErrBadString, got %v", err)
	}
	if !job.IsMalformed(err) {
		t.Fatal("expected malformed classification")
	}
}

func TestUpdateURLAttrs(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.NewJob(nil)
	j.URLAttrs().Set("hello", "goose")
	j.UpdateURLAttrs(map[string]any{"jimmy": "cricket"})
	if j.URLAttrs().String("hello") != "goose" || j.URLAttrs().String("jimmy") != "cricket" {
		t.Fatalf("attrs = %v", j.URLAttrs())
	}
	j.UpdateURLAttrs(map[string]any{"hello": "cricket"})
	if j.URLAttrs().String("hello") != "cricket" {
		t.Fatalf("attrs = %v", j.URLAttrs())
	}
}

type fakeBuilder struct {
	gotJob  *job.Job
	gotOpts map[string]any
}

func (b *fakeBuilder) URLFor(j *job.Job, opts map[string]any) string {
	b.gotJob, b.gotOpts = j, opts
	return "some.url"
}

func TestURL(t *testing.T) {
	builder := &fakeBuilder{}
	env := newTestEnv(t, func(o *job.Options) { o.URLBuilder = builder })
	j := env.engine.NewJob(nil)
	if got := j.URL(nil); got != "" {
		t.Fatalf("URL without steps = %q", got)
	}
	j.AddFetch("some_stuff")
	opts := map[string]any{"some": "opts"}
	if got := j.URL(opts); got != "some.url" {
		t.Fatalf("URL = %q", got)
	}
	if builder.gotJob != j || !reflect.DeepEqual(builder.gotOpts, opts) {
		t.Fatal("builder did not receive the job and options")
	}
}

func TestToFetchedJob(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.NewJob(nil)
	j.Content().Update([]byte("bugs"), map[string]any{"bug": "bear"})
	j.UpdateURLAttrs(map[string]any{"boog": "bar"})

	fetched := j.ToFetchedJob("some_uid")
	if !reflect.DeepEqual(fetched.ToArray(), [][]any{{"f", "some_uid"}}) || !fetched.Applied() {
		t.Fatalf("fetched = %v applied=%v", fetched.ToArray(), fetched.Applied())
	}
	if got := mustData(t, fetched); got != "bugs" {
		t.Fatalf("data = %q", got)
	}
	if meta, _ := fetched.Meta(ctx); !reflect.DeepEqual(meta, map[string]any{"bug": "bear"}) {
		t.Fatalf("meta = %v", meta)
	}
	j.Content().Update([]byte("dogs"), nil)
	j.UpdateURLAttrs(map[string]any{"boog": "dogs"})
	if got := mustData(t, fetched); got != "bugs" {
		t.Fatalf("fetched data changed to %q", got)
	}
	if fetched.URLAttrs().String("boog") != "bar" {
		t.Fatal("fetched url attrs changed")
	}
	if len(env.store.retrieved) != 0 {
		t.Fatal("fetched job should not hit the datastore")
	}
}

func TestUniqueString(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.Fetch("uid").Process("gug", 4, map[string]any{"some": "arg", "and": "more"})
	if got := j.UniqueString(); got != "fuidpgug4andmoresomearg" {
		t.Fatalf("UniqueString = %q", got)
	}
}

func TestSHA(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.Fetch("eggs")
	if !regexp.MustCompile(`^[0-9a-f]{8}$`).MatchString(j.SHA()) {
		t.Fatalf("sha = %q", j.SHA())
	}
	if env.engine.Fetch("eggs").SHA() != j.SHA() {
		t.Fatal("equal jobs should share a sha")
	}
	if env.engine.Fetch("figs").SHA() == j.SHA() {
		t.Fatal("different jobs should not share a sha")
	}
	other := newTestEnv(t, func(o *job.Options) { o.Secret = "other" })
	if other.engine.Fetch("eggs").SHA() == j.SHA() {
		t.Fatal("sha should depend on the secret")
	}
}

func TestValidateSHA(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.Fetch("eggs")
	if _, err := j.ValidateSHA(""); !errors.Is(err, job.ErrNoSHAGiven) {
		t.Fatalf("expected ErrNoSHAGiven, got %v", err)
	}
	if _, err := j.ValidateSHA("asdf"); !errors.Is(err, job.ErrIncorrectSHA) {
		t.Fatalf("expected ErrIncorrectSHA, got %v", err)
	}
	got, err := j.ValidateSHA(j.SHA())
	if err != nil || got != j {
		t.Fatalf("ValidateSHA = %v, %v", got, err)
	}
}

func TestCacheKey(t *testing.T) {
	env := newTestEnv(t)
	key := env.engine.Fetch("eggs").CacheKey()
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(key) {
		t.Fatalf("cache key = %q", key)
	}
	if env.engine.Fetch("eggs").CacheKey() != key || env.engine.Fetch("figs").CacheKey() == key {
		t.Fatal("cache key should track the unique string")
	}
}

func TestB64Data(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.NewJob([]byte("hi"))
	got, err := j.B64Data(ctx)
	if err != nil || !strings.HasPrefix(got, "data:") {
		t.Fatalf("B64Data = %q, %v", got, err)
	}
}

func TestQueriesDoNotApply(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	if e.Generate("ponies").Process("jam").FetchStep() != nil {
		t.Fatal("expected no fetch step")
	}
	if s := e.Fetch("hello").Process("jam").FetchStep(); s == nil || s.UID() != "hello" {
		t.Fatalf("fetch step = %v", s)
	}
	if e.NewJob([]byte("AGG")).UID() != "" {
		t.Fatal("expected empty uid")
	}
	if got := e.Fetch("gungedin/innit.blud").UID(); got != "gungedin/innit.blud" {
		t.Fatalf("uid = %q", got)
	}
	if e.Generate("ponies").Process("jam").FetchFileStep() != nil {
		t.Fatal("expected no fetch_file step")
	}
	if s := e.FetchFile("/my/file.png").Process("jam").FetchFileStep(); s == nil || s.Path() != "/my/file.png" {
		t.Fatalf("fetch_file step = %v", s)
	}
	if e.Generate("ponies").FetchURLStep() != nil {
		t.Fatal("expected no fetch_url step")
	}
	if s := e.FetchURL("egg.heads").Process("jam").FetchURLStep(); s == nil || s.URL() != "http://egg.heads" {
		t.Fatalf("fetch_url step = %v", s)
	}
	if e.Fetch("many/ponies").Process("jam").GenerateStep() != nil {
		t.Fatal("expected no generate step")
	}
	if s := e.Generate("ponies").Process("jam").GenerateStep(); s == nil || s.Name() != "ponies" {
		t.Fatalf("generate step = %v", s)
	}
	procs := e.Fetch("many/ponies").Process("jam").Process("eggs").ProcessSteps()
	if !reflect.DeepEqual(kinds(procs), []job.Kind{job.KindProcess, job.KindProcess}) {
		t.Fatalf("process steps = %v", procs)
	}
	if got := e.Fetch("eggs").Process("jam").StepTypes(); !reflect.DeepEqual(got, []job.Kind{job.KindFetch, job.KindProcess}) {
		t.Fatalf("step types = %v", got)
	}
	if len(env.store.retrieved) != 0 {
		t.Fatal("queries should not apply the job")
	}
}

func TestMetaAndNameAccessors(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.NewJob(nil)
	if name, _ := j.Name(ctx); name != "" {
		t.Fatalf("default name = %q", name)
	}
	if err := j.SetMeta(ctx, map[string]any{"a": "b"}); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if meta, _ := j.Meta(ctx); !reflect.DeepEqual(meta, map[string]any{"a": "b"}) {
		t.Fatalf("meta = %v", meta)
	}
	j.Content().Meta()[content.MetaName] = "monkey.png"
	checks := map[string]func(context.Context) (string, error){
		"monkey.png": j.Name,
		"monkey":     j.Basename,
		"png":        j.Ext,
		"image/png":  j.MimeType,
	}
	for want, fn := range checks {
		if got, err := fn(ctx); err != nil || got != want {
			t.Fatalf("accessor = %q, %v; want %q", got, err, want)
		}
	}
}

func TestStore(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.NewJob([]byte("payload"))
	uid, err := j.Store(ctx, job.StoreOptions{Meta: map[string]any{"k": "v"}})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if uid == "" || len(env.store.stored) != 1 {
		t.Fatalf("uid=%q stored=%v", uid, env.store.stored)
	}
	if got := string(env.store.items[uid].data); got != "payload" {
		t.Fatalf("stored data = %q", got)
	}
}

func TestApplyHonorsCancellation(t *testing.T) {
	env := newTestEnv(t)
	env.store.put("uid", "x", nil)
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	j := env.engine.Fetch("uid")
	if _, err := j.Apply(cctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(j.PendingSteps()) != 1 {
		t.Fatal("cancelled step should stay pending")
	}
}

func TestStepArgsNormalized(t *testing.T) {
	env := newTestEnv(t)
	j := env.engine.NewJob(nil).AddProcess("p", 3, float32(1.5), []string{"a"}, map[string]int{"n": 1})
	want := []any{int64(3), 1.5, []any{"a"}, map[string]any{"n": int64(1)}}
	if got := j.ProcessSteps()[0].Arguments(); !reflect.DeepEqual(got, want) {
		t.Fatalf("arguments = %#v", got)
	}
}
