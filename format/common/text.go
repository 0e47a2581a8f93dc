package common

import (
	"flag"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	ProtoName = map[uint32]string{
		1:   "ICMP",
		6:   "TCP",
		17:  "UDP",
		47:  "GRE",
		50:  "ESP",
		58:  "ICMPv6",
		132: "SCTP",
	}
	IcmpTypeName = map[uint32]string{
		0:  "EchoReply",
		3:  "DestinationUnreachable",
		8:  "Echo",
		9:  "RouterAdvertisement",
		10: "RouterSolicitation",
		11: "TimeExceeded",
	}
	Icmp6TypeName = map[uint32]string{
		1:   "DestinationUnreachable",
		2:   "PacketTooBig",
		3:   "TimeExceeded",
		128: "EchoRequest",
		129: "EchoReply",
		133: "RouterSolicitation",
		134: "RouterAdvertisement",
	}
)

var (
	selectorVar string
	selector    []string // Rendered fields, all when empty

	selectorDeclared     bool
	selectorDeclaredLock = &sync.Mutex{}
)

func SelectorFlag() {
	selectorDeclaredLock.Lock()
	defer selectorDeclaredLock.Unlock()

	if selectorDeclared {
		return
	}
	selectorDeclared = true
	flag.StringVar(&selectorVar, "format.selector", "", "List of fields to render, separated by commas (all when empty)")
}

func ManualSelectorInit() error {
	selector = nil
	if selectorVar == "" {
		return nil
	}
	selector = strings.Split(selectorVar, ",")
	return nil
}

func IcmpCodeType(proto, icmpCode, icmpType uint32) string {
	if proto == 1 {
		return IcmpTypeName[icmpType]
	} else if proto == 58 {
		return Icmp6TypeName[icmpType]
	}
	return ""
}

func ExtractTag(name, original string, tag reflect.StructTag) string {
	lookup, ok := tag.Lookup(name)
	if !ok {
		return original
	}
	before, _, _ := strings.Cut(lookup, ",")
	return before
}

func omitEmpty(tag reflect.StructTag) bool {
	lookup, ok := tag.Lookup("json")
	return ok && strings.Contains(lookup, ",omitempty")
}

// FieldNames lists the json names of the selected fields of a struct.
func FieldNames(msg interface{}) []string {
	var names []string
	walkFields(msg, true, func(name string, value reflect.Value) {
		names = append(names, name)
	})
	return names
}

func FormatMessageReflectText(msg interface{}, ext string) string {
	return FormatMessageReflectCustom(msg, ext, "", " ", "=", false)
}

// FormatMessageReflectCSV renders every selected field, empty ones included,
// in declaration order.
func FormatMessageReflectCSV(msg interface{}) []string {
	var values []string
	walkFields(msg, true, func(name string, value reflect.Value) {
		values = append(values, renderValue(value, ""))
	})
	return values
}

func FormatMessageReflectCustom(msg interface{}, ext, quotes, sep, sign string, null bool) string {
	var fstr []string
	walkFields(msg, null, func(name string, value reflect.Value) {
		q := ""
		if value.Kind() == reflect.String {
			q = "\""
		}
		fstr = append(fstr, fmt.Sprintf("%s%s%s%s%s", quotes, name, quotes, sign, renderValue(value, q)))
	})
	if ext != "" {
		fstr = append(fstr, ext)
	}
	return strings.Join(fstr, sep)
}

func walkFields(msg interface{}, all bool, fn func(name string, value reflect.Value)) {
	vfm := reflect.Indirect(reflect.ValueOf(msg))
	vft := vfm.Type()
	idx := indexOf(vft)

	names := selector
	if len(names) == 0 {
		names = idx.names
	}
	for _, name := range names {
		i, ok := idx.position[name]
		if !ok {
			continue
		}
		value := vfm.Field(i)
		if !all && omitEmpty(vft.Field(i).Tag) && value.IsZero() {
			continue
		}
		fn(name, value)
	}
}

func renderValue(value reflect.Value, quote string) string {
	switch value.Kind() {
	case reflect.String:
		if quote == "" {
			return value.String()
		}
		return fmt.Sprintf("%q", value.String())
	case reflect.Slice:
		c := value.Len()
		parts := make([]string, c)
		for i := 0; i < c; i++ {
			parts[i] = fmt.Sprintf("%v", value.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprintf("%v", value.Interface())
	}
}
