package gpio

// Indicator drives a single output pin, typically a status LED or an IR
// illuminator that should only be lit while the camera is reading frames.
type Indicator struct {
	drv Driver
	pin int
}

// NewIndicator configures pin as an output and switches it off.
func NewIndicator(drv Driver, pin int) (*Indicator, error) {
	if err := drv.SetupPin(pin, Output); err != nil {
		return nil, err
	}
	if err := drv.WritePin(pin, Low); err != nil {
		return nil, err
	}
	return &Indicator{drv: drv, pin: pin}, nil
}

func (i *Indicator) On() error  { return i.drv.WritePin(i.pin, High) }
func (i *Indicator) Off() error { return i.drv.WritePin(i.pin, Low) }

// Pin returns the BCM pin number.
func (i *Indicator) Pin() int { return i.pin }
