package plant_station

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

const (
	seesawStatusBase  = 0x00
	seesawStatusHwID  = 0x01
	seesawStatusTemp  = 0x04
	seesawStatusSwRst = 0x7F
	seesawTouchBase   = 0x0F
	seesawTouchOffset = 0x10

	seesawMaxMoisture = 4095
	seesawAttempts    = 3
)

var seesawHwIDs = map[byte]string{
	0x55: "SAMD09",
	0x84: "ATtiny806",
	0x85: "ATtiny807",
	0x87: "ATtiny817",
}

var ErrInvalidMoisture = errors.New("could not get a valid moisture reading")

// SeesawOpts configures an Adafruit STEMMA soil sensor.
type SeesawOpts struct {
	Addr uint16
	Dry  int
	Wet  int
	// Delay is the conversion time between a register write and the read.
	Delay time.Duration
	// ResetDelay is how long the chip needs to boot after a software reset.
	ResetDelay time.Duration
}

var DefaultSeesawOpts = SeesawOpts{
	Addr:       0x36,
	Dry:        200,
	Wet:        600,
	Delay:      5 * time.Millisecond,
	ResetDelay: 500 * time.Millisecond,
}

// Seesaw talks to the STEMMA capacitive soil sensor over I2C.
type Seesaw struct {
	dev  *i2c.Dev
	opts SeesawOpts
	chip string
}

// NewSeesaw resets the chip at opts.Addr and checks its hardware id.
func NewSeesaw(bus i2c.Bus, opts *SeesawOpts) (*Seesaw, error) {
	s := &Seesaw{
		dev:  &i2c.Dev{Bus: bus, Addr: opts.Addr},
		opts: *opts,
	}
	if err := s.dev.Tx([]byte{seesawStatusBase, seesawStatusSwRst, 0xFF}, nil); err != nil {
		return nil, fmt.Errorf("cannot reset seesaw: %w", err)
	}
	if opts.ResetDelay > 0 {
		time.Sleep(opts.ResetDelay)
	}
	buf := make([]byte, 1)
	if err := s.read(seesawStatusBase, seesawStatusHwID, buf); err != nil {
		return nil, fmt.Errorf("cannot read seesaw hardware id: %w", err)
	}
	chip, ok := seesawHwIDs[buf[0]]
	if !ok {
		return nil, fmt.Errorf("seesaw hardware id 0x%02x is not supported", buf[0])
	}
	s.chip = chip
	return s, nil
}

func (s *Seesaw) String() string {
	return fmt.Sprintf("seesaw(%s)@0x%02x", s.chip, s.opts.Addr)
}

func (s *Seesaw) read(base, reg byte, buf []byte) error {
	if err := s.dev.Tx([]byte{base, reg}, nil); err != nil {
		return err
	}
	if s.opts.Delay > 0 {
		time.Sleep(s.opts.Delay)
	}
	return s.dev.Tx(nil, buf)
}

// Moisture returns the raw capacitive value, 200 (dry) to 2000 (wet).
func (s *Seesaw) Moisture() (int, error) {
	buf := make([]byte, 2)
	for i := 0; i < seesawAttempts; i++ {
		if err := s.read(seesawTouchBase, seesawTouchOffset, buf); err != nil {
			return 0, fmt.Errorf("cannot read moisture: %w", err)
		}
		if v := binary.BigEndian.Uint16(buf); v <= seesawMaxMoisture {
			return int(v), nil
		}
	}
	return 0, ErrInvalidMoisture
}

// Temperature returns the chip temperature in Celsius.
func (s *Seesaw) Temperature() (float64, error) {
	buf := make([]byte, 4)
	if err := s.read(seesawStatusBase, seesawStatusTemp, buf); err != nil {
		return 0, fmt.Errorf("cannot read temperature: %w", err)
	}
	buf[0] &= 0x3F
	return float64(binary.BigEndian.Uint32(buf)) / (1 << 16), nil
}

func (s *Seesaw) Sense() (Sample, error) {
	raw, err := s.Moisture()
	if err != nil {
		return Sample{}, err
	}
	temp, err := s.Temperature()
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Moisture:    MoisturePercent(raw, s.opts.Dry, s.opts.Wet),
		Temperature: round1(temp),
		Raw:         float64(raw),
	}, nil
}

func (s *Seesaw) Halt() error {
	return nil
}
