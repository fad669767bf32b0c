package resource

import "testing"

func TestParseYieldPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    YieldPolicy
		wantErr bool
	}{
		{"", YieldAlways, false},
		{"Always", YieldAlways, false},
		{" never ", YieldNever, false},
		{"pressure", YieldByPressure, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		got, err := ParseYieldPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseYieldPolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestYieldPolicy_Allows(t *testing.T) {
	weak := NewUser(1, true)
	weak.AccessPressure = PressureOptional
	strong := NewUser(2, true)
	strong.AccessPressure = PressureRequired

	tests := []struct {
		policy    YieldPolicy
		requester *User
		own       Pressure
		want      bool
	}{
		{YieldAlways, weak, PressureRequired, true},
		{YieldNever, strong, PressureNone, false},
		{YieldNever, nil, PressureNone, true},
		{YieldByPressure, weak, PressureRequired, false},
		{YieldByPressure, strong, PressureRequired, true},
		{YieldByPressure, weak, PressureOptional, true},
	}
	for _, tt := range tests {
		if got := tt.policy.Allows(tt.requester, tt.own); got != tt.want {
			t.Errorf("%s.Allows(%v, %d) = %v, want %v", tt.policy, tt.requester, tt.own, got, tt.want)
		}
	}
}
