package conf

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"
)

// envPrefix is prepended to upper-cased flag names to build the fallback
// environment variable name. For instance: "cassandra_addr" becomes
// "PERFTEST_CASSANDRA_ADDR".
const envPrefix = "PERFTEST"

// flagType is an internal interface for all flags.
// Every flag should have method for creating `envName` from its name and
// `clear` method for clearing corresponding environment variable from env.
type flagType interface {
	envName() string
	clear()
}

// definedFlags is a package variable which stores all the defined flags.
// It helps to find duplicates when defining flag with the same name.
var definedFlags = map[string]flagType{}

// cliAndEnvFlag represents option's definition from CLI and Environment
// variable. It stores generic data for each defined flag.
type cliAndEnvFlag struct {
	*kingpin.FlagClause
}

func newCliAndEnvFlag(flagName string, description string, defaultValues ...string) *cliAndEnvFlag {
	duplicatedFlag := definedFlags[flagName]
	if duplicatedFlag != nil {
		panic("This flag was already defined. Flag definition is lack of duplicate check.")
	}

	c := &cliAndEnvFlag{FlagClause: app.Flag(flagName, description)}
	c.OverrideDefaultFromEnvar(c.envName())

	for _, defaultValue := range defaultValues {
		if defaultValue == "" {
			continue
		}
		c.Default(defaultValue)
	}

	return c
}

// envName returns name converted to perftest environment variable name.
func (f *cliAndEnvFlag) envName() string {
	return fmt.Sprintf("%s_%s", envPrefix, strings.ToUpper(f.Model().Name))
}

// clear unset the corresponded environment variable.
func (f *cliAndEnvFlag) clear() {
	os.Unsetenv(f.envName())
}

// StringFlag represents flag with string value.
type StringFlag struct {
	*cliAndEnvFlag
	defaultValue string
	value        *string
}

// NewStringFlag is a constructor of StringFlag struct.
func NewStringFlag(flagName string, description string, defaultValue string) *StringFlag {
	// Check for duplicates and use it if it defines the same type of flag.
	duplicatedFlag := definedFlags[flagName]
	if duplicatedFlag != nil {
		flagDef, ok := duplicatedFlag.(*StringFlag)
		if !ok {
			panic("Flag was redefined but with different type. Unify the type.")
		}

		if flagDef.defaultValue != defaultValue {
			panic("Flag was redefined but with different default value. Unify the default.")
		}

		return flagDef
	}

	// Flag is not yet defined, so create one.
	flagDef := &StringFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, defaultValue),
		defaultValue:  defaultValue,
	}

	flagDef.value = flagDef.String()
	definedFlags[flagName] = flagDef
	isEnvParsed = false
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (s StringFlag) Value() string {
	if !isEnvParsed {
		return s.defaultValue
	}

	return *s.value
}

// FileFlag represents flag with a path to an existing file.
type FileFlag struct {
	*StringFlag
}

// NewFileFlag is a constructor of FileFlag struct which checks if file exists.
func NewFileFlag(flagName string, description string, defaultValue string) *FileFlag {
	// Check for duplicates and use it if it defines the same type of flag.
	duplicatedFlag := definedFlags[flagName]
	if duplicatedFlag != nil {
		flagDef, ok := duplicatedFlag.(*FileFlag)
		if !ok {
			panic("Flag was redefined but with different type. Unify the type.")
		}

		if flagDef.defaultValue != defaultValue {
			panic("Flag was redefined but with different default value. Unify the default.")
		}

		return flagDef
	}

	// Flag is not yet defined, so create one.
	flagDef := &FileFlag{
		StringFlag: &StringFlag{
			cliAndEnvFlag: newCliAndEnvFlag(flagName, description, defaultValue),
			defaultValue:  defaultValue,
		},
	}

	flagDef.value = flagDef.ExistingFile()
	definedFlags[flagName] = flagDef
	isEnvParsed = false
	return flagDef
}

// IntFlag represents flag with int value.
type IntFlag struct {
	*cliAndEnvFlag
	defaultValue int
	value        *int
}

// NewIntFlag is a constructor of IntFlag struct.
func NewIntFlag(flagName string, description string, defaultValue int) *IntFlag {
	// Check for duplicates and use it if it defines the same type of flag.
	duplicatedFlag := definedFlags[flagName]
	if duplicatedFlag != nil {
		flagDef, ok := duplicatedFlag.(*IntFlag)
		if !ok {
			panic("Flag was redefined but with different type. Unify the type.")
		}

		if flagDef.defaultValue != defaultValue {
			panic("Flag was redefined but with different default value. Unify the default.")
		}

		return flagDef
	}

	// Flag is not yet defined, so create one.
	flagDef := &IntFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, fmt.Sprintf("%d", defaultValue)),
		defaultValue:  defaultValue,
	}

	flagDef.value = flagDef.Int()
	definedFlags[flagName] = flagDef
	isEnvParsed = false
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (i IntFlag) Value() int {
	if !isEnvParsed {
		return i.defaultValue
	}

	return *i.value
}

// FloatFlag represents flag with float64 value.
type FloatFlag struct {
	*cliAndEnvFlag
	defaultValue float64
	value        *float64
}

// NewFloatFlag is a constructor of FloatFlag struct.
func NewFloatFlag(flagName string, description string, defaultValue float64) *FloatFlag {
	// Check for duplicates and use it if it defines the same type of flag.
	duplicatedFlag := definedFlags[flagName]
	if duplicatedFlag != nil {
		flagDef, ok := duplicatedFlag.(*FloatFlag)
		if !ok {
			panic("Flag was redefined but with different type. Unify the type.")
		}

		if flagDef.defaultValue != defaultValue {
			panic("Flag was redefined but with different default value. Unify the default.")
		}

		return flagDef
	}

	// Flag is not yet defined, so create one.
	flagDef := &FloatFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, fmt.Sprintf("%v", defaultValue)),
		defaultValue:  defaultValue,
	}

	flagDef.value = flagDef.Float64()
	definedFlags[flagName] = flagDef
	isEnvParsed = false
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (f FloatFlag) Value() float64 {
	if !isEnvParsed {
		return f.defaultValue
	}

	return *f.value
}

// SliceFlag represents flag that can be repeated to build a list of strings.
type SliceFlag struct {
	*cliAndEnvFlag
	defaultValue []string
	value        *[]string
}

// NewSliceFlag is a constructor of SliceFlag struct.
func NewSliceFlag(flagName string, description string, elemsInDefaultSlice ...string) *SliceFlag {
	// Check for duplicates and use it if it defines the same type of flag.
	duplicatedFlag := definedFlags[flagName]
	if duplicatedFlag != nil {
		flagDef, ok := duplicatedFlag.(*SliceFlag)
		if !ok {
			panic("Flag was redefined but with different type. Unify the type.")
		}

		for i, elem := range elemsInDefaultSlice {
			if flagDef.defaultValue[i] != elem {
				panic("Flag was redefined but with different default value. Unify the default.")
			}
		}

		return flagDef
	}

	// Flag is not yet defined, so create one.
	flagDef := &SliceFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, strings.Join(elemsInDefaultSlice, ",")),
		defaultValue:  elemsInDefaultSlice,
	}

	flagDef.value = flagDef.Strings()
	definedFlags[flagName] = flagDef
	isEnvParsed = false
	return flagDef
}

// Value returns value of defined flag after parse.
func (s SliceFlag) Value() []string {
	if !isEnvParsed {
		return s.defaultValue
	}

	if len(*s.value) == 0 {
		return s.defaultValue
	}

	return *s.value
}

// BoolFlag represents flag with bool value.
type BoolFlag struct {
	*cliAndEnvFlag
	defaultValue bool
	value        *bool
}

// NewBoolFlag is a constructor of BoolFlag struct.
func NewBoolFlag(flagName string, description string, defaultValue bool) *BoolFlag {
	// Check for duplicates and use it if it defines the same type of flag.
	duplicatedFlag := definedFlags[flagName]
	if duplicatedFlag != nil {
		flagDef, ok := duplicatedFlag.(*BoolFlag)
		if !ok {
			panic("Flag was redefined but with different type. Unify the type.")
		}

		if flagDef.defaultValue != defaultValue {
			panic("Flag was redefined but with different default value. Unify the default.")
		}

		return flagDef
	}

	// Flag is not yet defined, so create one.
	flagDef := &BoolFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, fmt.Sprintf("%v", defaultValue)),
		defaultValue:  defaultValue,
	}

	flagDef.value = flagDef.Bool()
	definedFlags[flagName] = flagDef
	isEnvParsed = false
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (b BoolFlag) Value() bool {
	if !isEnvParsed {
		return b.defaultValue
	}

	return *b.value
}

// DurationFlag represents flag with duration value.
type DurationFlag struct {
	*cliAndEnvFlag
	defaultValue time.Duration
	value        *time.Duration
}

// NewDurationFlag is a constructor of DurationFlag struct.
func NewDurationFlag(flagName string, description string, defaultValue time.Duration) *DurationFlag {
	// Check for duplicates and use it if it defines the same type of flag.
	duplicatedFlag := definedFlags[flagName]
	if duplicatedFlag != nil {
		flagDef, ok := duplicatedFlag.(*DurationFlag)
		if !ok {
			panic("Flag was redefined but with different type. Unify the type.")
		}

		if flagDef.defaultValue != defaultValue {
			panic("Flag was redefined but with different default value. Unify the default.")
		}

		return flagDef
	}

	// Flag is not yet defined, so create one.
	flagDef := &DurationFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, defaultValue.String()),
		defaultValue:  defaultValue,
	}

	flagDef.value = flagDef.Duration()
	definedFlags[flagName] = flagDef
	isEnvParsed = false
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (d DurationFlag) Value() time.Duration {
	if !isEnvParsed {
		return d.defaultValue
	}

	return *d.value
}
