package resource

import "testing"

func TestAccess_TextRoundTrip(t *testing.T) {
	for _, a := range []Access{AccessUnknown, AccessNone, AccessShared, AccessBlocking} {
		text, err := a.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) error = %v", a, err)
		}
		var got Access
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", text, err)
		}
		if got != a {
			t.Errorf("round trip of %v = %v", a, got)
		}
	}
}

func TestParseAccess(t *testing.T) {
	tests := []struct {
		in      string
		want    Access
		wantErr bool
	}{
		{"none", AccessNone, false},
		{"Shared", AccessShared, false},
		{"exclusive", AccessBlocking, false},
		{" blocking ", AccessBlocking, false},
		{"sometimes", AccessUnknown, true},
	}
	for _, tt := range tests {
		got, err := ParseAccess(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAccess(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseAccess(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAccess_Conflicts(t *testing.T) {
	tests := []struct {
		holder, want Access
		conflict     bool
	}{
		{AccessNone, AccessBlocking, false},
		{AccessShared, AccessShared, false},
		{AccessShared, AccessBlocking, true},
		{AccessBlocking, AccessShared, true},
		{AccessBlocking, AccessBlocking, true},
		{AccessUnknown, AccessShared, true},
		{AccessBlocking, AccessNone, false},
	}
	for _, tt := range tests {
		if got := tt.holder.Conflicts(tt.want); got != tt.conflict {
			t.Errorf("%v.Conflicts(%v) = %v, want %v", tt.holder, tt.want, got, tt.conflict)
		}
	}
}

func TestParsePressure(t *testing.T) {
	tests := []struct {
		in      string
		want    Pressure
		wantErr bool
	}{
		{"required", PressureRequired, false},
		{"partial", PressurePartiallySupported, false},
		{"", PressureOptional, false},
		{"75", Pressure(75), false},
		{"101", PressureNone, true},
		{"-1", PressureNone, true},
		{"lots", PressureNone, true},
	}
	for _, tt := range tests {
		got, err := ParsePressure(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePressure(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParsePressure(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResult_Text(t *testing.T) {
	for _, r := range []Result{ResultSuccess, ResultError, ResultDeny} {
		text, err := r.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) error = %v", r, err)
		}
		var got Result
		if err := got.UnmarshalText(text); err != nil || got != r {
			t.Errorf("round trip of %v = %v, %v", r, got, err)
		}
	}
	if _, err := resultUnset.MarshalText(); err == nil {
		t.Error("MarshalText() of unset result should fail")
	}
}
