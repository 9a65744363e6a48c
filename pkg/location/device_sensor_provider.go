package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

const (
	knotsToMetersPerSecond = 0.514444
	// sentences to keep reading after a GGA fix while waiting for the matching RMC
	rmcLookahead = 10
)

// DeviceSensorProvider is responsible for retrieving location data from a GPS device connected via serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication
	open     func() (io.ReadCloser, error)
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int) *DeviceSensorProvider {
	d := &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
	}
	d.open = func() (io.ReadCloser, error) {
		return serial.OpenPort(&serial.Config{Name: d.port, Baud: d.baudRate, ReadTimeout: time.Second})
	}
	return d
}

func (d *DeviceSensorProvider) Source() Source { return SourceGPS }

func (d *DeviceSensorProvider) Close() error { return nil }

// Permission reports whether the serial port can be opened by this process.
func (d *DeviceSensorProvider) Permission(_ context.Context) (PermissionState, error) {
	if _, err := os.Stat(d.port); err != nil {
		if os.IsPermission(err) {
			return PermissionDenied, nil
		}
		return PermissionDenied, fmt.Errorf("gps port %s: %w", d.port, err)
	}
	s, err := d.open()
	if err != nil {
		if os.IsPermission(err) {
			return PermissionDenied, nil
		}
		return PermissionPrompt, err
	}
	_ = s.Close()
	return PermissionGranted, nil
}

// GetLocation reads NMEA sentences until a GGA fix is found and returns it,
// enriched with speed and course from an RMC sentence when one is present.
func (d *DeviceSensorProvider) GetLocation(ctx context.Context) (Position, error) {
	s, err := d.open()
	if err != nil {
		if os.IsPermission(err) {
			return Position{}, fmt.Errorf("open %s: %w", d.port, ErrPermissionDenied)
		}
		return Position{}, fmt.Errorf("open %s: %w", d.port, err)
	}

	type result struct {
		pos Position
		err error
	}
	done := make(chan result, 1)
	go func() {
		pos, err := readFix(s)
		done <- result{pos, err}
	}()

	select {
	case r := <-done:
		_ = s.Close()
		return r.pos, r.err
	case <-ctx.Done():
		// closing the port unblocks the reader goroutine
		_ = s.Close()
		return Position{}, ctx.Err()
	}
}

// readFix scans r for a GGA sentence with a valid fix.
func readFix(r io.Reader) (Position, error) {
	var (
		pos      Position
		haveFix  bool
		haveRMC  bool
		sinceFix int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		sentence, err := nmea.Parse(scanner.Text())
		if err != nil {
			// partial lines are common right after the port opens
			continue
		}

		switch s := sentence.(type) {
		case nmea.GGA:
			if s.FixQuality == nmea.Invalid {
				continue
			}
			alt := s.Altitude
			pos.Latitude = s.Latitude
			pos.Longitude = s.Longitude
			pos.Accuracy = s.HDOP // HDOP as a proxy for accuracy
			pos.Altitude = &alt
			pos.Timestamp = time.Now()
			haveFix = true
		case nmea.RMC:
			if s.Validity != nmea.ValidRMC {
				continue
			}
			speed := s.Speed * knotsToMetersPerSecond
			course := s.Course
			pos.Speed = &speed
			pos.Heading = &course
			haveRMC = true
		}

		if haveFix {
			if haveRMC {
				return pos, nil
			}
			sinceFix++
			if sinceFix > rmcLookahead {
				return pos, nil
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return Position{}, err
	}
	if haveFix {
		return pos, nil
	}
	return Position{}, errors.Join(ErrNoFix, errors.New("no valid GPS data found"))
}
