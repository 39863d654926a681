package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/taskrouter/internal/logging"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
)

// BenchmarkInvoke_Linear runs linear graphs against the memory store.
// Each iteration uses a fresh session so the step sequence stays short.
func BenchmarkInvoke_Linear(b *testing.B) {
	for _, n := range []int{5, 20} {
		b.Run(fmt.Sprintf("nodes_%d", n), func(b *testing.B) {
			compiled := mustCompile(b, buildLinearGraph(n),
				flowgraph.WithLogger(logging.NewNop()), flowgraph.WithStepBudget(n+1))
			ctx := context.Background()
			b.ReportAllocs()
			i := 0
			for b.Loop() {
				if _, err := compiled.Invoke(ctx, fmt.Sprintf("s-%d", i), State{Query: "q"}); err != nil {
					b.Fatal(err)
				}
				i++
			}
		})
	}
}

// BenchmarkInvoke_Router runs the classify-then-answer shape.
func BenchmarkInvoke_Router(b *testing.B) {
	compiled := mustCompile(b, buildRouterGraph(), flowgraph.WithLogger(logging.NewNop()))
	ctx := context.Background()
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		if _, err := compiled.Invoke(ctx, fmt.Sprintf("s-%d", i), State{Query: "帮我启动车辆"}); err != nil {
			b.Fatal(err)
		}
		i++
	}
}

// BenchmarkInvoke_SameSession grows one session's history.
func BenchmarkInvoke_SameSession(b *testing.B) {
	compiled := mustCompile(b, buildRouterGraph(), flowgraph.WithLogger(logging.NewNop()))
	ctx := context.Background()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := compiled.Invoke(ctx, "shared", State{Query: "今天天气"}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSuspendResume measures an approval round trip.
func BenchmarkSuspendResume(b *testing.B) {
	stores := map[string]func(b *testing.B) checkpoint.Store{
		"memory": func(b *testing.B) checkpoint.Store { return checkpoint.NewMemoryStore() },
		"sqlite": func(b *testing.B) checkpoint.Store {
			store, err := checkpoint.NewSQLiteStore(b.TempDir() + "/bench.db")
			if err != nil {
				b.Fatal(err)
			}
			return store
		},
	}
	for name, open := range stores {
		b.Run(name, func(b *testing.B) {
			store := open(b)
			defer store.Close()
			compiled := mustCompile(b, buildApprovalGraph(),
				flowgraph.WithCheckpointer(store), flowgraph.WithLogger(logging.NewNop()))
			ctx := context.Background()
			b.ReportAllocs()
			i := 0
			for b.Loop() {
				id := fmt.Sprintf("s-%d", i)
				res, err := compiled.Invoke(ctx, id, State{Query: "启动"})
				if err != nil || !res.Suspended() {
					b.Fatalf("invoke: %v", err)
				}
				if _, err := compiled.Resume(ctx, id, "y"); err != nil {
					b.Fatal(err)
				}
				i++
			}
		})
	}
}
