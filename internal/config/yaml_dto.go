package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type YAMLAnalysis struct {
	Dataset    string   `yaml:"dataset"`
	Covariates []string `yaml:"covariates"`
	Measure    string   `yaml:"measure"`
	Mode       string   `yaml:"mode"`
	Negative   string   `yaml:"negative"`

	PBA YAMLPBA `yaml:"pba"`

	Selection      *YAMLSelection      `yaml:"selection"`
	Classification *YAMLClassification `yaml:"classification"`
	Confounding    *YAMLConfounding    `yaml:"confounding"`

	Sweep []YAMLAxis `yaml:"sweep"`
}

type YAMLPBA struct {
	Trials    *int     `yaml:"trials"`
	Seed      *uint64  `yaml:"seed"`
	Workers   *int     `yaml:"workers"`
	Policy    string   `yaml:"policy"`
	Level     *float64 `yaml:"level"`
	Bootstrap *bool    `yaml:"bootstrap"`
}

type YAMLSelection struct {
	S11 *YAMLDist `yaml:"s11"`
	S01 *YAMLDist `yaml:"s01"`
	S10 *YAMLDist `yaml:"s10"`
	S00 *YAMLDist `yaml:"s00"`
}

type YAMLAccuracy struct {
	Sens1 *YAMLDist `yaml:"sens1"`
	Sens0 *YAMLDist `yaml:"sens0"`
	Spec1 *YAMLDist `yaml:"spec1"`
	Spec0 *YAMLDist `yaml:"spec0"`
}

type YAMLClassification struct {
	Target       string `yaml:"target"`
	YAMLAccuracy `yaml:",inline"`

	Strata map[string]YAMLAccuracy `yaml:"strata"`
}

type YAMLConfounding struct {
	PU1  *YAMLDist `yaml:"pu1"`
	PU0  *YAMLDist `yaml:"pu0"`
	RRUY *YAMLDist `yaml:"rr_uy"`
}

type YAMLAxis struct {
	Name   string    `yaml:"name"`
	Values []float64 `yaml:"values"`
}

// YAMLDist is a distribution written either as a bare number (a fixed value)
// or as a single-key mapping from form name to its arguments:
//
//	sens1: 0.8
//	sens1: {triangular: [0.75, 0.8, 0.85]}
type YAMLDist struct {
	Form string
	Args []float64
	Line int
}

func (d *YAMLDist) UnmarshalYAML(value *yaml.Node) error {
	d.Line = value.Line
	switch value.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := value.Decode(&v); err != nil {
			return fmt.Errorf("line %d: distribution must be a number or a {form: args} mapping", value.Line)
		}
		d.Form, d.Args = "fixed", []float64{v}
		return nil
	case yaml.MappingNode:
		if len(value.Content) != 2 {
			return fmt.Errorf("line %d: distribution mapping must have exactly one form", value.Line)
		}
		d.Form = value.Content[0].Value
		args := value.Content[1]
		if args.Kind == yaml.ScalarNode {
			var v float64
			if err := args.Decode(&v); err != nil {
				return fmt.Errorf("line %d: %s: argument must be a number", args.Line, d.Form)
			}
			d.Args = []float64{v}
			return nil
		}
		if err := args.Decode(&d.Args); err != nil {
			return fmt.Errorf("line %d: %s: arguments must be a list of numbers", args.Line, d.Form)
		}
		return nil
	default:
		return fmt.Errorf("line %d: distribution must be a number or a {form: args} mapping", value.Line)
	}
}
