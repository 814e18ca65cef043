package board

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		opts    PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "explicit values",
			opts: PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"},
			want: PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"},
		},
		{
			name: "negative baud rate defaults",
			opts: PortOptions{BaudRate: -5},
			want: PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "parity words",
			opts: PortOptions{Parity: " odd "},
			want: PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "O"},
		},
		{
			name: "parity none",
			opts: PortOptions{Parity: "none"},
			want: PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{name: "nonstandard baud rate", opts: PortOptions{BaudRate: 12345}, wantErr: true},
		{name: "data bits too small", opts: PortOptions{DataBits: 4}, wantErr: true},
		{name: "data bits too large", opts: PortOptions{DataBits: 9}, wantErr: true},
		{name: "stop bits", opts: PortOptions{StopBits: 3}, wantErr: true},
		{name: "mark parity", opts: PortOptions{Parity: "M"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.Normalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	tests := []struct {
		name     string
		opts     PortOptions
		parity   serial.Parity
		stopBits serial.StopBits
	}{
		{"defaults", PortOptions{}, serial.NoParity, serial.OneStopBit},
		{"even two stop bits", PortOptions{Parity: "E", StopBits: 2}, serial.EvenParity, serial.TwoStopBits},
		{"odd", PortOptions{Parity: "O", StopBits: 1}, serial.OddParity, serial.OneStopBit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := tt.opts.SerialMode()
			if err != nil {
				t.Fatalf("SerialMode() error = %v", err)
			}
			if mode.BaudRate != DefaultBaudRate || mode.DataBits != 8 {
				t.Errorf("mode = %+v", mode)
			}
			if mode.Parity != tt.parity {
				t.Errorf("Parity = %v, want %v", mode.Parity, tt.parity)
			}
			if mode.StopBits != tt.stopBits {
				t.Errorf("StopBits = %v, want %v", mode.StopBits, tt.stopBits)
			}
		})
	}

	if _, err := (PortOptions{DataBits: 12}).SerialMode(); err == nil {
		t.Error("expected error for invalid options")
	}
}

func TestOpen_InvalidOptions(t *testing.T) {
	if _, err := Open("/dev/null", PortOptions{StopBits: 5}); err == nil {
		t.Error("expected error for invalid options")
	}
}

func TestOpen_MissingDevice(t *testing.T) {
	if _, err := Open("/dev/does-not-exist-sensorhub", PortOptions{}); err == nil {
		t.Error("expected error opening a missing device")
	}
}
