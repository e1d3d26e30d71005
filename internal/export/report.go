package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"guesthouse/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet  = "Bookings"
	occupancySheet = "Occupancy"
	maxReportDays  = 92
)

var bookingColumns = []string{
	"ID", "Customer ID", "Guesthouse ID", "Room", "Check-in", "Check-out", "Nights",
	"Base Amount", "Discount", "Amount", "Promo", "Status", "Paid At", "Created At",
}

// RoomLookup resolves room names for the occupancy grid.
type RoomLookup interface {
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
}

// Reporter renders booking reports as xlsx workbooks.
type Reporter struct {
	rooms  RoomLookup
	dir    string
	logger *zerolog.Logger
}

func NewReporter(rooms RoomLookup, dir string, logger *zerolog.Logger) *Reporter {
	return &Reporter{rooms: rooms, dir: dir, logger: logger}
}

// Write streams the workbook for bookings in [start, end] to w.
func (r *Reporter) Write(ctx context.Context, w io.Writer, bookings []*models.Booking, start, end time.Time) error {
	f, err := r.Build(ctx, bookings, start, end)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// SaveFile writes the workbook under the export directory and returns its path.
func (r *Reporter) SaveFile(ctx context.Context, bookings []*models.Booking, start, end time.Time) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := r.Build(ctx, bookings, start, end)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx", start.Format(models.DateLayout), end.Format(models.DateLayout))
	filePath := filepath.Join(r.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	r.logger.Info().Str("file_path", filePath).Int("bookings", len(bookings)).Msg("bookings report created")
	return filePath, nil
}

// Build creates a workbook with a flat booking list and a room by night occupancy grid.
func (r *Reporter) Build(ctx context.Context, bookings []*models.Booking, start, end time.Time) (*excelize.File, error) {
	start, end = models.DateOnly(start), models.DateOnly(end)
	if end.Before(start) {
		return nil, errors.New("report range end before start")
	}
	if models.Nights(start, end)+1 > maxReportDays {
		return nil, fmt.Errorf("report range exceeds %d days", maxReportDays)
	}

	roomNames := r.resolveRooms(ctx, bookings)

	f := excelize.NewFile()
	if _, err := f.NewSheet(bookingsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	if _, err := f.NewSheet(occupancySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	if err := writeBookingList(f, bookings, roomNames); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeOccupancy(f, bookings, roomNames, start, end); err != nil {
		f.Close()
		return nil, err
	}

	if idx, err := f.GetSheetIndex(bookingsSheet); err == nil {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

func (r *Reporter) resolveRooms(ctx context.Context, bookings []*models.Booking) map[int64]string {
	names := make(map[int64]string)
	for _, b := range bookings {
		if _, ok := names[b.RoomID]; ok {
			continue
		}
		names[b.RoomID] = fmt.Sprintf("Room %d", b.RoomID)
		if r.rooms == nil {
			continue
		}
		room, err := r.rooms.GetRoom(ctx, b.RoomID)
		if err != nil {
			r.logger.Warn().Err(err).Int64("room_id", b.RoomID).Msg("report: room lookup failed")
			continue
		}
		names[b.RoomID] = room.Name
	}
	return names
}

func writeBookingList(f *excelize.File, bookings []*models.Booking, roomNames map[int64]string) error {
	header, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return err
	}

	for i, title := range bookingColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(bookingsSheet, cell, title)
	}
	last, _ := excelize.CoordinatesToCellName(len(bookingColumns), 1)
	_ = f.SetCellStyle(bookingsSheet, "A1", last, header)

	for i, b := range bookings {
		paidAt := ""
		if b.PaidAt != nil {
			paidAt = b.PaidAt.Format("2006-01-02 15:04")
		}
		row := []interface{}{
			b.ID, b.CustomerID, b.GuesthouseID, roomNames[b.RoomID],
			b.CheckIn.Format(models.DateLayout), b.CheckOut.Format(models.DateLayout), b.Nights,
			b.BaseAmount, b.Discount, b.Amount, b.PromoCode, string(b.Status),
			paidAt, b.CreatedAt.Format("2006-01-02 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(bookingsSheet, cell, &row); err != nil {
			return fmt.Errorf("write booking %d: %w", b.ID, err)
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "C", 12)
	_ = f.SetColWidth(bookingsSheet, "D", "D", 20)
	_ = f.SetColWidth(bookingsSheet, "E", "N", 14)
	return nil
}

// writeOccupancy draws rooms as rows and nights as columns. A cell lists the
// bookings holding that night and is coloured by the strongest status.
func writeOccupancy(f *excelize.File, bookings []*models.Booking, roomNames map[int64]string, start, end time.Time) error {
	_ = f.SetCellValue(occupancySheet, "A1", fmt.Sprintf("Period: %s - %s", start.Format(models.DateLayout), end.Format(models.DateLayout)))

	days := models.Nights(start, end) + 1
	for d := 0; d < days; d++ {
		cell, _ := excelize.CoordinatesToCellName(d+2, 2)
		_ = f.SetCellValue(occupancySheet, cell, start.AddDate(0, 0, d).Format("02.01"))
	}

	roomIDs := make([]int64, 0, len(roomNames))
	for id := range roomNames {
		roomIDs = append(roomIDs, id)
	}
	sort.Slice(roomIDs, func(i, j int) bool { return roomIDs[i] < roomIDs[j] })

	rowOf := make(map[int64]int, len(roomIDs))
	for i, id := range roomIDs {
		rowOf[id] = i + 3
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(occupancySheet, cell, roomNames[id])
	}

	type nightCell struct {
		lines  []string
		status models.BookingStatus
	}
	cells := make(map[string]*nightCell)

	for _, b := range bookings {
		if b.Status == models.BookingCancelled {
			continue
		}
		for night := models.DateOnly(b.CheckIn); night.Before(b.CheckOut); night = night.AddDate(0, 0, 1) {
			if night.Before(start) || night.After(end) {
				continue
			}
			ref, _ := excelize.CoordinatesToCellName(models.Nights(start, night)+2, rowOf[b.RoomID])
			c := cells[ref]
			if c == nil {
				c = &nightCell{}
				cells[ref] = c
			}
			c.lines = append(c.lines, fmt.Sprintf("#%d %s", b.ID, b.Status))
			if statusRank(b.Status) > statusRank(c.status) {
				c.status = b.Status
			}
		}
	}

	for ref, c := range cells {
		_ = f.SetCellValue(occupancySheet, ref, strings.Join(c.lines, "\n"))
		style, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{statusColor(c.status)}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
		})
		if err != nil {
			return err
		}
		_ = f.SetCellStyle(occupancySheet, ref, ref, style)
	}

	lastCol, _ := excelize.ColumnNumberToName(days + 1)
	_ = f.MergeCell(occupancySheet, "A1", lastCol+"1")
	_ = f.SetColWidth(occupancySheet, "A", "A", 25)
	_ = f.SetColWidth(occupancySheet, "B", lastCol, 14)
	return nil
}

func statusRank(s models.BookingStatus) int {
	switch s {
	case models.BookingConfirmed:
		return 3
	case models.BookingPending:
		return 2
	case models.BookingRefunded:
		return 1
	default:
		return 0
	}
}

func statusColor(s models.BookingStatus) string {
	switch s {
	case models.BookingConfirmed:
		return "#C6EFCE"
	case models.BookingPending:
		return "#FFEB9C"
	default:
		return "#FFFFFF"
	}
}
