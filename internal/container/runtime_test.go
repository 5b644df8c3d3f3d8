// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package container

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// fakeExecutor records calls and returns configured responses.
type fakeExecutor struct {
	availableBins map[string]bool
	runnableCmds  map[string]bool
	runPipedFunc  func(name string, args []string, stdin io.Reader, stdout io.Writer) error
}

func (m *fakeExecutor) LookPath(file string) (string, error) {
	if m.availableBins[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found: " + file)
}

func (m *fakeExecutor) RunSilent(_ context.Context, name string, args ...string) error {
	key := name + " " + strings.Join(args, " ")
	if m.runnableCmds[key] {
		return nil
	}
	return errors.New("command failed: " + key)
}

func (m *fakeExecutor) RunPiped(_ context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	if m.runPipedFunc != nil {
		return m.runPipedFunc(name, args, stdin, stdout)
	}
	return nil
}

func TestDetectRuntime(t *testing.T) {
	tests := []struct {
		name     string
		exec     *fakeExecutor
		wantName string
		wantErr  bool
	}{
		{
			name: "docker available",
			exec: &fakeExecutor{
				availableBins: map[string]bool{"docker": true},
				runnableCmds:  map[string]bool{"docker info": true},
			},
			wantName: "docker",
		},
		{
			name: "podman fallback when docker missing",
			exec: &fakeExecutor{
				availableBins: map[string]bool{"podman": true},
				runnableCmds:  map[string]bool{"podman info": true},
			},
			wantName: "podman",
		},
		{
			name:    "neither available",
			exec:    &fakeExecutor{},
			wantErr: true,
		},
		{
			name: "docker on PATH but info fails",
			exec: &fakeExecutor{
				availableBins: map[string]bool{"docker": true, "podman": true},
				runnableCmds:  map[string]bool{"podman info": true},
			},
			wantName: "podman",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := detectRuntime(context.Background(), tt.exec)
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "no container runtime available") {
					t.Fatalf("err = %v, want no runtime available", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rt.Name() != tt.wantName {
				t.Errorf("got runtime %q, want %q", rt.Name(), tt.wantName)
			}
		})
	}
}

func TestImageExists(t *testing.T) {
	const image = "minidocks/poppler:latest"
	tests := []struct {
		name    string
		mkRT    func(*fakeExecutor) Runtime
		cmds    map[string]bool
		wantErr bool
	}{
		{"docker found", func(e *fakeExecutor) Runtime { return newDockerRuntime(e) }, map[string]bool{"docker image inspect " + image: true}, false},
		{"docker missing", func(e *fakeExecutor) Runtime { return newDockerRuntime(e) }, nil, true},
		{"podman found", func(e *fakeExecutor) Runtime { return newPodmanRuntime(e) }, map[string]bool{"podman image exists " + image: true}, false},
		{"podman missing", func(e *fakeExecutor) Runtime { return newPodmanRuntime(e) }, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := tt.mkRT(&fakeExecutor{runnableCmds: tt.cmds})
			err := rt.ImageExists(context.Background(), image)
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), image) {
					t.Fatalf("err = %v, want mention of %s", err, image)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRunPassesArgsAndPipes(t *testing.T) {
	var gotArgs []string
	exec := &fakeExecutor{runPipedFunc: func(name string, args []string, stdin io.Reader, stdout io.Writer) error {
		if name != "docker" {
			return errors.New("expected docker binary")
		}
		gotArgs = args
		data, _ := io.ReadAll(stdin)
		_, _ = stdout.Write([]byte("text of " + string(data)))
		return nil
	}}
	rt := newDockerRuntime(exec)

	var out bytes.Buffer
	err := rt.Run(context.Background(), "img", []string{"pdftotext", "-", "-"}, strings.NewReader("pdf"), &out)
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != "text of pdf" {
		t.Errorf("out = %q", out.String())
	}
	want := "run --rm -i --network=none img pdftotext - -"
	if got := strings.Join(gotArgs, " "); got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestRunWrapsFailure(t *testing.T) {
	exec := &fakeExecutor{runPipedFunc: func(string, []string, io.Reader, io.Writer) error {
		return errors.New("exit status 1")
	}}
	err := newPodmanRuntime(exec).Run(context.Background(), "img", nil, strings.NewReader(""), io.Discard)
	if err == nil || !strings.Contains(err.Error(), "podman") {
		t.Fatalf("err = %v", err)
	}
}
