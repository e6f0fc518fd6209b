package unit_test

import (
	"context"
	"errors"
	"testing"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
	"github.com/DecentralizedGeo/stac-manager-sub002/unit"
)

type testSource struct{}

func (testSource) Produce(_ context.Context, _ *pipeline.Context, _ func(*pipeline.Record) error) error {
	return nil
}

type testSink struct{}

func (testSink) Consume(_ context.Context, _ *pipeline.Context, _ *pipeline.Record) error {
	return nil
}

func (testSink) Finalize(_ context.Context, _ *pipeline.Context) (any, error) {
	return nil, nil
}

type testBatchSink struct{ testSink }

func (testBatchSink) ConsumeBatch(_ context.Context, _ *pipeline.Context, _ []*pipeline.Record) error {
	return nil
}

// testAmbiguous claims to be both a Source and a Filter.
type testAmbiguous struct{ testSource }

func (testAmbiguous) Apply(_ context.Context, _ *pipeline.Context, _ *pipeline.Record) ([]*pipeline.Record, error) {
	return nil, nil
}

type testNothing struct{}

func stepFor(unitName string) *pipeline.Step {
	return &pipeline.Step{ID: "s1", Unit: unitName}
}

func TestResolve_Source(t *testing.T) {
	reg := unit.NewRegistry()
	reg.Register("src", func(_ map[string]any) (any, error) { return testSource{}, nil })

	res, err := reg.Resolve(stepFor("src"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != unit.KindSource || res.Source == nil {
		t.Fatalf("expected source, got kind %v", res.Kind)
	}
}

func TestResolve_Filter(t *testing.T) {
	reg := unit.NewRegistry()
	reg.Register("flt", func(_ map[string]any) (any, error) {
		return unit.FilterFunc(func(_ context.Context, _ *pipeline.Context, rec *pipeline.Record) ([]*pipeline.Record, error) {
			return []*pipeline.Record{rec}, nil
		}), nil
	})

	res, err := reg.Resolve(stepFor("flt"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != unit.KindFilter || res.Filter == nil {
		t.Fatalf("expected filter, got kind %v", res.Kind)
	}
}

func TestResolve_SinkWithBatchFastPath(t *testing.T) {
	reg := unit.NewRegistry()
	reg.Register("plain", func(_ map[string]any) (any, error) { return testSink{}, nil })
	reg.Register("batch", func(_ map[string]any) (any, error) { return testBatchSink{}, nil })

	plain, err := reg.Resolve(stepFor("plain"))
	if err != nil {
		t.Fatalf("Resolve plain: %v", err)
	}
	if plain.Kind != unit.KindSink || plain.Batch != nil {
		t.Fatalf("plain sink should have no batch path")
	}

	batch, err := reg.Resolve(stepFor("batch"))
	if err != nil {
		t.Fatalf("Resolve batch: %v", err)
	}
	if batch.Kind != unit.KindSink || batch.Batch == nil {
		t.Fatalf("batch sink should expose the batch path")
	}
}

func TestResolve_UnknownUnit(t *testing.T) {
	reg := unit.NewRegistry()

	_, err := reg.Resolve(stepFor("ghost"))
	if !errors.Is(err, pipeline.ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit, got %v", err)
	}
	if !pipeline.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %T", err)
	}
}

func TestResolve_ConstructorFailure(t *testing.T) {
	reg := unit.NewRegistry()
	boom := errors.New("no such bucket")
	reg.Register("bad", func(_ map[string]any) (any, error) { return nil, boom })

	_, err := reg.Resolve(stepFor("bad"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected constructor error, got %v", err)
	}
	if !pipeline.IsConfigError(err) {
		t.Fatalf("constructor failure must be a ConfigError, got %T", err)
	}
}

func TestResolve_NoContract(t *testing.T) {
	reg := unit.NewRegistry()
	reg.Register("none", func(_ map[string]any) (any, error) { return testNothing{}, nil })

	_, err := reg.Resolve(stepFor("none"))
	if !errors.Is(err, pipeline.ErrNoContract) {
		t.Fatalf("expected ErrNoContract, got %v", err)
	}
}

func TestResolve_AmbiguousContract(t *testing.T) {
	reg := unit.NewRegistry()
	reg.Register("both", func(_ map[string]any) (any, error) { return testAmbiguous{}, nil })

	_, err := reg.Resolve(stepFor("both"))
	if !errors.Is(err, pipeline.ErrAmbiguousContract) {
		t.Fatalf("expected ErrAmbiguousContract, got %v", err)
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	reg := unit.NewRegistry()
	reg.Register("dup", func(_ map[string]any) (any, error) { return testSource{}, nil })

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	reg.Register("dup", func(_ map[string]any) (any, error) { return testSource{}, nil })
}

func TestNames_Sorted(t *testing.T) {
	reg := unit.NewRegistry()
	reg.Register("b", func(_ map[string]any) (any, error) { return testSource{}, nil })
	reg.Register("a", func(_ map[string]any) (any, error) { return testSource{}, nil })

	names := reg.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("Names() = %v, want [a b]", names)
	}
}
