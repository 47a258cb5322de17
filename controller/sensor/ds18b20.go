package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const DefaultW1Path = "/sys/bus/w1/devices"

// DS18B20 reads a 1-wire temperature probe through the kernel w1 sysfs
// interface. With an empty ID the first probe found is used.
type DS18B20 struct {
	root string
	id   string

	mu     sync.Mutex
	device string
}

var _ Source = (*DS18B20)(nil)

func NewDS18B20(root, id string) *DS18B20 {
	if root == "" {
		root = DefaultW1Path
	}
	return &DS18B20{root: root, id: id}
}

// Setup scans the bus for a probe.
func (d *DS18B20) Setup(_ Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.id != "" {
		dev := filepath.Join(d.root, d.id)
		if _, err := os.Stat(filepath.Join(dev, "w1_slave")); err != nil {
			return fmt.Errorf("%w: %v", ErrNotReady, err)
		}
		d.device = dev
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(d.root, "28-*"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: no ds18b20 found under %s", ErrNotReady, d.root)
	}
	d.device = matches[0]
	return nil
}

func (d *DS18B20) Read(_ Channel) (float64, error) {
	d.mu.Lock()
	dev := d.device
	d.mu.Unlock()
	if dev == "" {
		return 0, ErrNotReady
	}
	data, err := os.ReadFile(filepath.Join(dev, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSensorRead, err)
	}
	return parseW1Slave(string(data))
}

// parseW1Slave parses the two line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(s string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("%w: truncated w1_slave output", ErrSensorRead)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("%w: crc check failed", ErrSensorRead)
	}
	i := strings.LastIndex(lines[1], "t=")
	if i < 0 {
		return 0, fmt.Errorf("%w: temperature missing", ErrSensorRead)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][i+2:]))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSensorRead, err)
	}
	return float64(milli) / 1000, nil
}
