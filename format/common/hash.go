package common

import (
	"flag"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	fieldsVar string
	fields    []string // Hashing fields

	declared     bool
	declaredLock = &sync.Mutex{}

	indexes sync.Map // reflect.Type -> *fieldIndex
)

// fieldIndex maps the json names of the exported fields of a struct to their
// position, in declaration order.
type fieldIndex struct {
	names    []string
	position map[string]int
}

func indexOf(t reflect.Type) *fieldIndex {
	if idx, ok := indexes.Load(t); ok {
		return idx.(*fieldIndex)
	}
	idx := &fieldIndex{position: make(map[string]int, t.NumField())}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := ExtractTag("json", field.Name, field.Tag)
		idx.position[name] = i
		idx.names = append(idx.names, name)
	}
	actual, _ := indexes.LoadOrStore(t, idx)
	return actual.(*fieldIndex)
}

func HashFlag() {
	declaredLock.Lock()
	defer declaredLock.Unlock()

	if declared {
		return
	}
	declared = true
	flag.StringVar(&fieldsVar, "format.hash", "exporter_sysid", "List of fields to do hashing, separated by commas")
}

// ManualHashInit parses -format.hash, rejecting names FlowView does not have.
func ManualHashInit() error {
	fields = nil
	if fieldsVar == "" {
		return nil
	}
	idx := indexOf(reflect.TypeOf(FlowView{}))
	for _, name := range strings.Split(fieldsVar, ",") {
		name = strings.TrimSpace(name)
		if _, ok := idx.position[name]; !ok {
			return fmt.Errorf("unknown hash field %q", name)
		}
		fields = append(fields, name)
	}
	return nil
}

func HashProtoLocal(msg interface{}) string {
	return HashProto(fields, msg)
}

// HashProto joins the values of the named fields of msg, each followed by a
// dash. Names are json names; unknown ones are ignored.
func HashProto(fields []string, msg interface{}) string {
	if msg == nil {
		return ""
	}
	vfm := reflect.Indirect(reflect.ValueOf(msg))
	idx := indexOf(vfm.Type())

	var b strings.Builder
	for _, kf := range fields {
		if i, ok := idx.position[kf]; ok {
			fmt.Fprintf(&b, "%v-", vfm.Field(i))
		}
	}
	return b.String()
}
