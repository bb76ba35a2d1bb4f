// Package pciids parses the pci.ids database (vendor/device/subsystem and
// class/subclass/programming-interface hierarchies) and offers a narrow
// lookup-by-ID API.
package pciids

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Subsystem is a vendor/device-specific board, keyed by (subvendor,
// subdevice) under its owning [Device].
type Subsystem struct {
	Name string
}

// Device is one PCI device ID under a [Vendor].
type Device struct {
	Name       string
	Subsystems map[[2]uint16]Subsystem
}

// Vendor is one top-level PCI vendor ID.
type Vendor struct {
	Name    string
	Devices map[uint16]Device
}

// ProgrammingInterface is the finest-grained class classification.
type ProgrammingInterface struct {
	Name string
}

// Subclass is a PCI device subclass under a [Class].
type Subclass struct {
	Name                  string
	ProgrammingInterfaces map[uint8]ProgrammingInterface
}

// Class is a top-level PCI device class ("C" lines in pci.ids).
type Class struct {
	Name       string
	Subclasses map[uint8]Subclass
}

// DB is the parsed pci.ids database, indexed for O(1) lookup by ID.
type DB struct {
	Vendors map[uint16]Vendor
	Classes map[uint8]Class
}

// VendorName looks up a vendor by ID.
func (db *DB) VendorName(vendor uint16) (string, bool) {
	v, ok := db.Vendors[vendor]
	return v.Name, ok
}

// DeviceName looks up a device name given its owning vendor and device ID.
func (db *DB) DeviceName(vendor, device uint16) (string, bool) {
	v, ok := db.Vendors[vendor]
	if !ok {
		return "", false
	}
	d, ok := v.Devices[device]
	return d.Name, ok
}

// SubsystemName looks up a subsystem name by vendor, device, subvendor and
// subdevice IDs.
func (db *DB) SubsystemName(vendor, device, subvendor, subdevice uint16) (string, bool) {
	v, ok := db.Vendors[vendor]
	if !ok {
		return "", false
	}
	d, ok := v.Devices[device]
	if !ok {
		return "", false
	}
	s, ok := d.Subsystems[[2]uint16{subvendor, subdevice}]
	return s.Name, ok
}

// ClassName looks up a top-level class name.
func (db *DB) ClassName(class uint8) (string, bool) {
	c, ok := db.Classes[class]
	return c.Name, ok
}

type lineKind uint8

const (
	lineVendor lineKind = iota
	lineDevice
	lineSubsystem
	lineClass
	lineSubclass
	lineProgIf
)

type parsedLine struct {
	kind lineKind
	id8  uint8
	id16 uint16
	sub1 uint16 // subvendor (subsystem) or secondary id
	sub2 uint16 // subdevice
	name string
}

// Parse reads a pci.ids-formatted stream and builds the two-level
// vendor/device/subsystem and class/subclass/prog-if hierarchies. Lines are
// tab-indented: no leading tab is a vendor or class line; one leading tab is
// a device or subclass line; two leading tabs are a subsystem or
// programming-interface line.
func Parse(r io.Reader) (*DB, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var lines []parsedLine
	lineno := 0
	for sc.Scan() {
		lineno++
		raw := sc.Text()
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		pl, ok, err := parseLine(raw)
		if err != nil {
			return nil, fmt.Errorf("pciids: line %d: %w", lineno, err)
		}
		if ok {
			lines = append(lines, pl)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return buildHierarchy(lines), nil
}

func parseLine(raw string) (parsedLine, bool, error) {
	switch {
	case strings.HasPrefix(raw, "\t\t"):
		body := raw[2:]
		// Subsystem: "<subvendor> <subdevice>  <name>"; prog-if: "<id>  <name>".
		fields := strings.SplitN(body, "  ", 2)
		if len(fields) != 2 {
			return parsedLine{}, false, fmt.Errorf("malformed sub-entry %q", raw)
		}
		head := strings.TrimSpace(fields[0])
		name := strings.TrimSpace(fields[1])
		if parts := strings.Fields(head); len(parts) == 2 {
			subvendor, err := parseHex16(parts[0])
			if err != nil {
				return parsedLine{}, false, err
			}
			subdevice, err := parseHex16(parts[1])
			if err != nil {
				return parsedLine{}, false, err
			}
			return parsedLine{kind: lineSubsystem, sub1: subvendor, sub2: subdevice, name: name}, true, nil
		}
		id, err := parseHex8(head)
		if err != nil {
			return parsedLine{}, false, err
		}
		return parsedLine{kind: lineProgIf, id8: id, name: name}, true, nil

	case strings.HasPrefix(raw, "\t"):
		body := raw[1:]
		fields := strings.SplitN(body, "  ", 2)
		if len(fields) != 2 {
			return parsedLine{}, false, fmt.Errorf("malformed indented entry %q", raw)
		}
		id := strings.TrimSpace(fields[0])
		name := strings.TrimSpace(fields[1])
		if len(id) == 4 {
			id16, err := parseHex16(id)
			if err != nil {
				return parsedLine{}, false, err
			}
			return parsedLine{kind: lineDevice, id16: id16, name: name}, true, nil
		}
		id8, err := parseHex8(id)
		if err != nil {
			return parsedLine{}, false, err
		}
		return parsedLine{kind: lineSubclass, id8: id8, name: name}, true, nil

	case strings.HasPrefix(raw, "C "):
		fields := strings.SplitN(strings.TrimPrefix(raw, "C "), "  ", 2)
		if len(fields) != 2 {
			return parsedLine{}, false, fmt.Errorf("malformed class line %q", raw)
		}
		id, err := parseHex8(strings.TrimSpace(fields[0]))
		if err != nil {
			return parsedLine{}, false, err
		}
		return parsedLine{kind: lineClass, id8: id, name: strings.TrimSpace(fields[1])}, true, nil

	default:
		fields := strings.SplitN(raw, "  ", 2)
		if len(fields) != 2 {
			return parsedLine{}, false, fmt.Errorf("malformed vendor line %q", raw)
		}
		id, err := parseHex16(strings.TrimSpace(fields[0]))
		if err != nil {
			return parsedLine{}, false, err
		}
		return parsedLine{kind: lineVendor, id16: id, name: strings.TrimSpace(fields[1])}, true, nil
	}
}

func parseHex8(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 16, 8)
	return uint8(n), err
}

func parseHex16(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 16, 16)
	return uint16(n), err
}

// buildHierarchy folds the flat, indentation-ordered line stream into the
// nested vendor/device/subsystem and class/subclass/prog-if maps: each
// parent line opens a new bucket that subsequent, deeper-indented lines
// populate until a line of equal-or-shallower depth appears.
func buildHierarchy(lines []parsedLine) *DB {
	db := &DB{Vendors: make(map[uint16]Vendor), Classes: make(map[uint8]Class)}

	var curVendor *Vendor
	var curVendorID uint16
	var curDevice *Device
	var curDeviceID uint16

	var curClass *Class
	var curClassID uint8
	var curSubclass *Subclass
	var curSubclassID uint8

	flushDevice := func() {
		if curVendor != nil && curDevice != nil {
			curVendor.Devices[curDeviceID] = *curDevice
		}
		curDevice = nil
	}
	flushVendor := func() {
		flushDevice()
		if curVendor != nil {
			db.Vendors[curVendorID] = *curVendor
		}
		curVendor = nil
	}
	flushSubclass := func() {
		if curClass != nil && curSubclass != nil {
			curClass.Subclasses[curSubclassID] = *curSubclass
		}
		curSubclass = nil
	}
	flushClass := func() {
		flushSubclass()
		if curClass != nil {
			db.Classes[curClassID] = *curClass
		}
		curClass = nil
	}

	for _, l := range lines {
		switch l.kind {
		case lineVendor:
			flushVendor()
			flushClass()
			curVendorID = l.id16
			curVendor = &Vendor{Name: l.name, Devices: make(map[uint16]Device)}

		case lineDevice:
			flushDevice()
			curDeviceID = l.id16
			d := Device{Name: l.name, Subsystems: make(map[[2]uint16]Subsystem)}
			curDevice = &d

		case lineSubsystem:
			if curDevice != nil {
				curDevice.Subsystems[[2]uint16{l.sub1, l.sub2}] = Subsystem{Name: l.name}
			}

		case lineClass:
			flushVendor()
			flushClass()
			curClassID = l.id8
			curClass = &Class{Name: l.name, Subclasses: make(map[uint8]Subclass)}

		case lineSubclass:
			flushSubclass()
			curSubclassID = l.id8
			s := Subclass{Name: l.name, ProgrammingInterfaces: make(map[uint8]ProgrammingInterface)}
			curSubclass = &s

		case lineProgIf:
			if curSubclass != nil {
				curSubclass.ProgrammingInterfaces[l.id8] = ProgrammingInterface{Name: l.name}
			}
		}
	}
	flushVendor()
	flushClass()

	return db
}
