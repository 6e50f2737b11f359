package web

// Keys of the template variables in a PageModel.
const (
	KeyArduinoIP       = "arduino_ip"
	KeyArduinoHostname = "arduino_hostname"
	KeyAddressSource   = "address_source"
)

// PageModel holds the template variables of the page. It is built once after
// the Arduino is found and only read afterwards.
type PageModel map[string]string

// NewPageModel builds the model for a resolved address. overridden reports
// whether the address came from configuration instead of a lookup.
func NewPageModel(addr, hostname string, overridden bool) PageModel {
	source := "lookup"
	if overridden {
		source = "override"
	}
	return PageModel{
		KeyArduinoIP:       addr,
		KeyArduinoHostname: hostname,
		KeyAddressSource:   source,
	}
}
