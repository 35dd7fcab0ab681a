package cloud

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codebuild/types"
	"github.com/rs/zerolog"

	"github.com/cloudagents/codebuilder/node"
)

// fakeBuildAPI stands in for the CodeBuild client.
type fakeBuildAPI struct {
	mu           sync.Mutex
	startErr     error
	startBuildID string
	startCalls   int
	stopped      []string
	pages        []*codebuild.ListProjectsOutput
	listErr      error
	pageIndex    int
}

func (f *fakeBuildAPI) StartBuild(ctx context.Context, params *codebuild.StartBuildInput, optFns ...func(*codebuild.Options)) (*codebuild.StartBuildOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return nil, f.startErr
	}
	id := f.startBuildID
	if id == "" {
		id = "proj:build-1"
	}
	return &codebuild.StartBuildOutput{
		Build: &types.Build{Id: aws.String(id)},
	}, nil
}

func (f *fakeBuildAPI) StopBuild(ctx context.Context, params *codebuild.StopBuildInput, optFns ...func(*codebuild.Options)) (*codebuild.StopBuildOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, aws.ToString(params.Id))
	return &codebuild.StopBuildOutput{}, nil
}

func (f *fakeBuildAPI) ListProjects(ctx context.Context, params *codebuild.ListProjectsInput, optFns ...func(*codebuild.Options)) (*codebuild.ListProjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.pageIndex >= len(f.pages) {
		return &codebuild.ListProjectsOutput{}, nil
	}
	page := f.pages[f.pageIndex]
	f.pageIndex++
	return page, nil
}

func (f *fakeBuildAPI) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

// recordingListener captures fatal launch diagnostics.
type recordingListener struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingListener) FatalError(format string, a ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf(format, a...))
}

func newLaunchFixture(t *testing.T, fake *fakeBuildAPI) (*Cloud, *node.Registry, *node.Node) {
	t.Helper()
	reg := node.NewRegistry()
	c, err := New(context.Background(), "testcloud", Config{
		ProjectName:  "proj",
		Region:       "us-east-1",
		AgentTimeout: 1,
	}, reg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.newClient = func(ctx context.Context, cfg Config) (CodeBuildAPI, error) {
		return fake, nil
	}

	n := node.New("proj.cb-TeSt", "us-east-1", "proj", reg, zerolog.Nop())
	if err := reg.Add(n); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return c, reg, n
}

func TestLaunchStartFailure(t *testing.T) {
	fake := &fakeBuildAPI{startErr: errors.New("AccessDeniedException")}
	c, reg, n := newLaunchFixture(t, fake)
	comp := n.Computer()

	l := NewLauncher(c)
	listener := &recordingListener{}
	l.Launch(comp, listener)

	if comp.BuildID() != "" {
		t.Errorf("expected no build bound after start failure, got %q", comp.BuildID())
	}
	if reg.Len() != 0 {
		t.Error("expected node removed from registry after start failure")
	}
	if l.State() != StateFailed {
		t.Errorf("state = %v, want failed", l.State())
	}
	if l.IsLaunchSupported() {
		t.Error("expected launch no longer supported after failure")
	}
	if len(listener.messages) != 1 {
		t.Fatalf("expected 1 fatal message, got %d", len(listener.messages))
	}
}

func TestLaunchConnectsAfterKPolls(t *testing.T) {
	const k = 3
	fake := &fakeBuildAPI{startBuildID: "proj:abc"}
	c, reg, n := newLaunchFixture(t, fake)
	comp := n.Computer()

	l := NewLauncher(c)
	l.maxAttempts = 10

	var sleeps int
	l.sleep = func(time.Duration) {
		sleeps++
		if sleeps == k {
			comp.SetOnline(true)
		}
	}

	l.Launch(comp, &recordingListener{})

	if l.State() != StateConnected {
		t.Fatalf("state = %v, want connected", l.State())
	}
	if sleeps != k {
		t.Errorf("expected exactly %d poll intervals, got %d", k, sleeps)
	}
	if comp.BuildID() != "proj:abc" {
		t.Errorf("build ID = %q, want proj:abc", comp.BuildID())
	}
	if reg.Len() != 1 {
		t.Error("expected node still registered after connect")
	}
	if l.IsLaunchSupported() {
		t.Error("expected launch no longer supported after connect")
	}
}

func TestLaunchTimeout(t *testing.T) {
	fake := &fakeBuildAPI{startBuildID: "proj:abc"}
	c, reg, n := newLaunchFixture(t, fake)
	comp := n.Computer()

	l := NewLauncher(c)
	l.maxAttempts = 5

	var sleeps int
	l.sleep = func(time.Duration) { sleeps++ }

	listener := &recordingListener{}
	l.Launch(comp, listener)

	if l.State() != StateFailed {
		t.Fatalf("state = %v, want failed", l.State())
	}
	if sleeps != 5 {
		t.Errorf("expected the full 5-attempt budget, got %d sleeps", sleeps)
	}
	if comp.BuildID() != "" {
		t.Errorf("expected build binding cleared on timeout, got %q", comp.BuildID())
	}
	if reg.Len() != 0 {
		t.Error("expected node removed from registry on timeout")
	}
	if len(listener.messages) != 1 {
		t.Fatalf("expected 1 fatal message, got %d", len(listener.messages))
	}
}

func TestLaunchDerivesAttemptsFromTimeout(t *testing.T) {
	fake := &fakeBuildAPI{}
	c, _, n := newLaunchFixture(t, fake) // AgentTimeout: 1 second

	l := NewLauncher(c)
	var sleeps int
	l.sleep = func(time.Duration) { sleeps++ }

	l.Launch(n.Computer(), &recordingListener{})

	// 1 second of budget at 500ms per attempt.
	if sleeps != 2 {
		t.Errorf("expected 2 attempts for a 1s timeout, got %d", sleeps)
	}
}

// wrongComputer is an api.Computer that is not a node.Computer.
type wrongComputer struct{}

func (wrongComputer) Name() string           { return "impostor" }
func (wrongComputer) BuildID() string        { return "" }
func (wrongComputer) SetBuildID(string)      {}
func (wrongComputer) IsOnline() bool         { return false }
func (wrongComputer) IsAcceptingTasks() bool { return false }

func TestLaunchRejectsWrongComputerType(t *testing.T) {
	fake := &fakeBuildAPI{}
	c, reg, _ := newLaunchFixture(t, fake)

	l := NewLauncher(c)
	l.Launch(wrongComputer{}, &recordingListener{})

	if fake.starts() != 0 {
		t.Error("expected no remote call for a foreign computer type")
	}
	if reg.Len() != 1 {
		t.Error("expected registry untouched")
	}
}

func TestRelaunchRejected(t *testing.T) {
	fake := &fakeBuildAPI{}
	c, _, n := newLaunchFixture(t, fake)
	comp := n.Computer()
	comp.SetOnline(true)

	l := NewLauncher(c)
	l.maxAttempts = 1
	l.sleep = func(time.Duration) {}

	l.Launch(comp, &recordingListener{})
	if l.State() != StateConnected {
		t.Fatalf("state = %v, want connected", l.State())
	}

	l.Launch(comp, &recordingListener{})
	if fake.starts() != 1 {
		t.Errorf("expected a single StartBuild call, got %d", fake.starts())
	}
}

func TestBeforeDisconnectClearsBuildID(t *testing.T) {
	fake := &fakeBuildAPI{}
	c, _, n := newLaunchFixture(t, fake)
	comp := n.Computer()
	comp.SetBuildID("proj:abc")

	l := NewLauncher(c)
	l.BeforeDisconnect(comp)

	if comp.BuildID() != "" {
		t.Errorf("expected build binding cleared, got %q", comp.BuildID())
	}
}

func TestLaunchBuildRequestFields(t *testing.T) {
	var captured *codebuild.StartBuildInput
	fake := &fakeBuildAPI{}
	c, _, n := newLaunchFixture(t, fake)
	c.newClient = func(ctx context.Context, cfg Config) (CodeBuildAPI, error) {
		return &captureStartAPI{fakeBuildAPI: fake, captured: &captured}, nil
	}
	comp := n.Computer()
	comp.SetOnline(true)

	l := NewLauncher(c)
	l.Launch(comp, &recordingListener{})

	if captured == nil {
		t.Fatal("StartBuild was not called")
	}
	if aws.ToString(captured.ProjectName) != "proj" {
		t.Errorf("project = %q", aws.ToString(captured.ProjectName))
	}
	if captured.SourceTypeOverride != types.SourceTypeNoSource {
		t.Errorf("source type = %v, want NO_SOURCE", captured.SourceTypeOverride)
	}
	if !aws.ToBool(captured.PrivilegedModeOverride) {
		t.Error("expected privileged mode enabled")
	}
	if captured.ComputeTypeOverride != types.ComputeType(DefaultComputeType) {
		t.Errorf("compute type = %v", captured.ComputeTypeOverride)
	}
	if aws.ToString(captured.ImageOverride) != DefaultJNLPImage {
		t.Errorf("image = %q", aws.ToString(captured.ImageOverride))
	}
	want := Buildspec(DefaultJNLPCommand, "unknown", n.Secret(), n.Name())
	if aws.ToString(captured.BuildspecOverride) != want {
		t.Errorf("buildspec mismatch:\n%s", aws.ToString(captured.BuildspecOverride))
	}
}

type captureStartAPI struct {
	*fakeBuildAPI
	captured **codebuild.StartBuildInput
}

func (c *captureStartAPI) StartBuild(ctx context.Context, params *codebuild.StartBuildInput, optFns ...func(*codebuild.Options)) (*codebuild.StartBuildOutput, error) {
	*c.captured = params
	return c.fakeBuildAPI.StartBuild(ctx, params, optFns...)
}
