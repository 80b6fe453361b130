package commission

import (
	"context"
	"errors"
	"testing"

	"github.com/craftconnect/marketplace-backend/pkg/config"
)

func TestParseRate(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "0.02", want: "0.02"},
		{raw: " 0.15 ", want: "0.15"},
		{raw: "0", want: "0"},
		{raw: "1", want: "1"},
		{raw: "0.123456", want: "0.123456"},
		{raw: "0.020000000", want: "0.02"},
		{raw: "0.0123456", wantErr: true},
		{raw: "1.0001", wantErr: true},
		{raw: "-0.01", wantErr: true},
		{raw: "two percent", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			rate, err := ParseRate(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidRate) {
					t.Fatalf("expected ErrInvalidRate, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRate: %v", err)
			}
			if rate.String() != tc.want {
				t.Fatalf("rate %s, want %s", rate, tc.want)
			}
		})
	}
}

func TestMustRatePanicsOnInvalidInput(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustRate("2")
}

func TestEnvRateSourceReadsEachCall(t *testing.T) {
	source := EnvRateSource{}
	ctx := context.Background()

	t.Setenv(config.EnvCommissionRate, "0.02")
	rate, err := source.CurrentRate(ctx)
	if err != nil {
		t.Fatalf("CurrentRate: %v", err)
	}
	if !rate.Equal(MustRate("0.02")) {
		t.Fatalf("expected 0.02, got %s", rate)
	}

	t.Setenv(config.EnvCommissionRate, "0.05")
	rate, err = source.CurrentRate(ctx)
	if err != nil {
		t.Fatalf("CurrentRate: %v", err)
	}
	if !rate.Equal(MustRate("0.05")) {
		t.Fatalf("expected rate change to apply, got %s", rate)
	}

	t.Setenv(config.EnvCommissionRate, "1.5")
	if _, err := source.CurrentRate(ctx); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
}

func TestStaticAndFuncRateSources(t *testing.T) {
	static := StaticRateSource{Rate: MustRate("0.1")}
	rate, err := static.CurrentRate(context.Background())
	if err != nil || !rate.Equal(MustRate("0.1")) {
		t.Fatalf("static source returned %s, %v", rate, err)
	}

	boom := errors.New("config unavailable")
	fn := RateSourceFunc(func(context.Context) (Rate, error) { return Rate{}, boom })
	if _, err := fn.CurrentRate(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected func error, got %v", err)
	}
}
