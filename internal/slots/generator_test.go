package slots

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-platform/internal/availability"
	"github.com/hackgods/clinic-booking-platform/internal/conflict"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func window(day, startH, startM, endH, endM int) availability.Window {
	return availability.Window{
		ID:          uuid.New(),
		Day:         day,
		StartMinute: startH*60 + startM,
		EndMinute:   endH*60 + endM,
		Active:      true,
	}
}

func utc(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func TestTile_CountsPerDuration(t *testing.T) {
	windows := []availability.Window{window(0, 9, 0, 12, 0)}

	tests := []struct {
		duration time.Duration
		want     int
	}{
		{15 * time.Minute, 12},
		{30 * time.Minute, 6},
		{60 * time.Minute, 3},
	}
	for _, tt := range tests {
		t.Run(tt.duration.String(), func(t *testing.T) {
			tiles := Tile(windows, monday, time.UTC, tt.duration)
			if len(tiles) != tt.want {
				t.Fatalf("got %d tiles, want %d", len(tiles), tt.want)
			}
			if !tiles[0].Start.Equal(utc(9, 0)) {
				t.Errorf("first tile starts at %s", tiles[0].Start)
			}
			if !tiles[len(tiles)-1].End.Equal(utc(12, 0)) {
				t.Errorf("last tile ends at %s", tiles[len(tiles)-1].End)
			}
			for i, tile := range tiles {
				if tile.Duration() != tt.duration {
					t.Errorf("tile %d has duration %s", i, tile.Duration())
				}
				if i > 0 {
					if !tiles[i-1].End.Equal(tile.Start) {
						t.Errorf("tiles %d and %d are not contiguous", i-1, i)
					}
					if tiles[i-1].Overlaps(tile) {
						t.Errorf("tiles %d and %d overlap", i-1, i)
					}
				}
			}
		})
	}
}

func TestTile_DropsPartialTile(t *testing.T) {
	tiles := Tile([]availability.Window{window(0, 9, 0, 10, 10)}, monday, time.UTC, 30*time.Minute)
	if len(tiles) != 2 {
		t.Fatalf("got %d tiles, want 2", len(tiles))
	}
	if !tiles[1].End.Equal(utc(10, 0)) {
		t.Errorf("last tile ends at %s", tiles[1].End)
	}
}

func TestTile_OrdersAcrossWindowsAndConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	windows := []availability.Window{
		window(0, 14, 0, 15, 0),
		window(0, 9, 0, 10, 0),
	}
	tiles := Tile(windows, monday, loc, time.Hour)
	if len(tiles) != 2 {
		t.Fatalf("got %d tiles", len(tiles))
	}
	if !tiles[0].Start.Equal(utc(7, 0)) || !tiles[1].Start.Equal(utc(12, 0)) {
		t.Fatalf("unexpected tiles %v", tiles)
	}
	if tiles[0].Start.Location() != time.UTC {
		t.Errorf("tiles must be UTC, got %s", tiles[0].Start.Location())
	}
}

func TestTile_WindowEndingAtMidnight(t *testing.T) {
	tiles := Tile([]availability.Window{window(0, 22, 0, 24, 0)}, monday, time.UTC, time.Hour)
	if len(tiles) != 2 {
		t.Fatalf("got %d tiles, want 2", len(tiles))
	}
}

func TestGenerate_ExcludesBlockedRangeOnly(t *testing.T) {
	windows := []availability.Window{window(0, 9, 0, 12, 0)}
	blockers := []conflict.Range{{Start: utc(10, 0), End: utc(10, 30)}}
	now := time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC)

	got := Generate(windows, blockers, monday, time.UTC, 30*time.Minute, now)

	if Contains(got, conflict.Range{Start: utc(10, 0), End: utc(10, 30)}) {
		t.Error("10:00-10:30 must be excluded")
	}
	if !Contains(got, conflict.Range{Start: utc(9, 30), End: utc(10, 0)}) {
		t.Error("09:30-10:00 must be included")
	}
	if !Contains(got, conflict.Range{Start: utc(10, 30), End: utc(11, 0)}) {
		t.Error("10:30-11:00 must be included")
	}
	if len(got) != 5 {
		t.Errorf("got %d candidates, want 5", len(got))
	}
}

func TestGenerate_TodayDropsPastStarts(t *testing.T) {
	windows := []availability.Window{window(0, 9, 0, 12, 0)}
	now := utc(10, 0)

	got := Generate(windows, nil, monday, time.UTC, time.Hour, now)
	if len(got) != 1 || !got[0].Start.Equal(utc(11, 0)) {
		t.Fatalf("expected only 11:00, got %v", got)
	}

	tomorrow := monday.AddDate(0, 0, 7)
	if got := Generate(windows, nil, tomorrow, time.UTC, time.Hour, now); len(got) != 3 {
		t.Fatalf("future date must not be filtered, got %d", len(got))
	}
}

type fakeReader struct {
	clinic  availability.Clinic
	typ     availability.AppointmentType
	windows []availability.Window
}

func (f *fakeReader) GetClinic(context.Context, uuid.UUID) (*availability.Clinic, error) {
	return &f.clinic, nil
}

func (f *fakeReader) GetAppointmentType(context.Context, uuid.UUID) (*availability.AppointmentType, error) {
	return &f.typ, nil
}

func (f *fakeReader) ListActiveWindows(_ context.Context, doctorID, clinicID uuid.UUID, day int) ([]availability.Window, error) {
	var out []availability.Window
	for _, w := range f.windows {
		if w.DoctorID == doctorID && w.ClinicID == clinicID && w.Day == day {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeBlockers struct {
	ranges []conflict.Range
	from   time.Time
	to     time.Time
}

func (f *fakeBlockers) ListBlocking(_ context.Context, _ uuid.UUID, from, to, _ time.Time) ([]conflict.Range, error) {
	f.from, f.to = from, to
	return f.ranges, nil
}

func TestService_ConfirmedReservationScenario(t *testing.T) {
	doctor, clinic := uuid.New(), uuid.New()
	w := window(0, 9, 0, 12, 0)
	w.DoctorID, w.ClinicID = doctor, clinic
	tue := window(1, 10, 0, 18, 0)
	tue.DoctorID, tue.ClinicID = doctor, clinic

	reader := &fakeReader{
		clinic:  availability.Clinic{ID: clinic, Timezone: "UTC", Active: true},
		typ:     availability.AppointmentType{ID: uuid.New(), DoctorID: doctor, ClinicID: clinic, Duration: 30 * time.Minute, Active: true},
		windows: []availability.Window{w, tue},
	}
	blockers := &fakeBlockers{ranges: []conflict.Range{{Start: utc(10, 0), End: utc(10, 30)}}}
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	svc := NewService(reader, blockers, now)
	got, err := svc.Generate(context.Background(), Request{
		DoctorID: doctor, ClinicID: clinic, AppointmentTypeID: reader.typ.ID, Date: monday,
	})
	if err != nil {
		t.Fatal(err)
	}
	if Contains(got, conflict.Range{Start: utc(10, 0), End: utc(10, 30)}) {
		t.Error("confirmed range must be excluded")
	}
	if !Contains(got, conflict.Range{Start: utc(9, 30), End: utc(10, 0)}) || !Contains(got, conflict.Range{Start: utc(10, 30), End: utc(11, 0)}) {
		t.Errorf("neighbouring slots missing: %v", got)
	}
	if !blockers.from.Equal(utc(0, 0)) || !blockers.to.Equal(utc(0, 0).AddDate(0, 0, 1)) {
		t.Errorf("blockers queried for [%s, %s)", blockers.from, blockers.to)
	}
}

func TestService_NoWindowsYieldsEmpty(t *testing.T) {
	doctor, clinic := uuid.New(), uuid.New()
	reader := &fakeReader{
		clinic: availability.Clinic{ID: clinic, Timezone: "UTC"},
		typ:    availability.AppointmentType{DoctorID: doctor, ClinicID: clinic, Duration: 30 * time.Minute, Active: true},
	}
	svc := NewService(reader, &fakeBlockers{}, nil)
	got, err := svc.Generate(context.Background(), Request{DoctorID: doctor, ClinicID: clinic, Date: monday})
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v %v", got, err)
	}
}

func TestService_RejectsForeignAppointmentType(t *testing.T) {
	doctor, clinic := uuid.New(), uuid.New()
	reader := &fakeReader{
		clinic: availability.Clinic{ID: clinic, Timezone: "UTC"},
		typ:    availability.AppointmentType{DoctorID: uuid.New(), ClinicID: clinic, Duration: 30 * time.Minute, Active: true},
	}
	svc := NewService(reader, &fakeBlockers{}, nil)
	_, err := svc.Generate(context.Background(), Request{DoctorID: doctor, ClinicID: clinic, Date: monday})
	if err != availability.ErrAppointmentTypeNotFound {
		t.Fatalf("expected ErrAppointmentTypeNotFound, got %v", err)
	}
}
