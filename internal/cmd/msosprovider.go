package cmd

import "github.com/nullstream/usbxgadget/usbclass/msos"

// gadgetMSOSProvider supplies the compat-ID feature descriptor that tells a
// Windows host to auto-bind the XUSB10 driver to the demo's X360
// interface (spec.md section 4.2), and declines extended properties.
type gadgetMSOSProvider struct{}

func (gadgetMSOSProvider) CompatID() []msos.CompatIDFunction {
	return []msos.CompatIDFunction{
		{FirstInterfaceNumber: 0, CompatibleID: "XUSB10"},
	}
}

func (gadgetMSOSProvider) ExtendedProperties() []msos.CustomProperty {
	return nil
}
