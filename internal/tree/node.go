package tree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tabinfer/internal/dataset"
)

// Kind tags the variant a Node holds.
type Kind string

const (
	Leaf             Kind = "leaf"
	CategoricalSplit Kind = "categorical"
	NumericSplit     Kind = "numeric"
)

// Node is a tree node. Every node carries the majority prediction and class
// distribution of the rows that reached it; split nodes additionally carry
// exactly one of Categorical or Numeric.
type Node struct {
	Kind         Kind         `json:"type"`
	Prediction   string       `json:"prediction"`
	Samples      int          `json:"samples"`
	Entropy      float64      `json:"entropy"`
	Distribution []ClassCount `json:"distribution"`
	Categorical  *Categorical `json:"categorical,omitempty"`
	Numeric      *Numeric     `json:"numeric,omitempty"`
}

// ClassCount is the number of rows of one class at a node.
type ClassCount struct {
	Class string `json:"class"`
	Count int    `json:"count"`
}

// Categorical is a multiway split with one branch per observed value.
type Categorical struct {
	Feature  string   `json:"feature"`
	Gain     float64  `json:"gain"`
	Branches []Branch `json:"branches"`
}

// Branch maps one value (possibly missing) to a child.
type Branch struct {
	Value dataset.Value `json:"value"`
	Child *Node         `json:"child"`
}

// Numeric is a binary split: values <= Threshold go left, the rest and
// missing values go right.
type Numeric struct {
	Feature   string  `json:"feature"`
	Threshold float64 `json:"threshold"`
	Gain      float64 `json:"gain"`
	Left      *Node   `json:"left"`
	Right     *Node   `json:"right"`
}

// route walks from n to a leaf. If a categorical value has no branch the
// walk stops at the current node, whose majority prediction applies.
func (n *Node) route(lookup func(feature string) dataset.Value) *Node {
	node := n
	for {
		switch node.Kind {
		case NumericSplit:
			if f, ok := lookup(node.Numeric.Feature).Float(); ok && f <= node.Numeric.Threshold {
				node = node.Numeric.Left
			} else {
				node = node.Numeric.Right
			}
		case CategoricalSplit:
			v := lookup(node.Categorical.Feature)
			next := node.Categorical.branch(v)
			if next == nil {
				return node
			}
			node = next
		default:
			return node
		}
	}
}

func (c *Categorical) branch(v dataset.Value) *Node {
	for _, b := range c.Branches {
		if b.Value.Text() == v.Text() {
			return b.Child
		}
	}
	return nil
}

func (n *Node) depth() int {
	switch n.Kind {
	case NumericSplit:
		return 1 + max(n.Numeric.Left.depth(), n.Numeric.Right.depth())
	case CategoricalSplit:
		d := 0
		for _, b := range n.Categorical.Branches {
			d = max(d, b.Child.depth())
		}
		return 1 + d
	default:
		return 0
	}
}

func (n *Node) leaves() int {
	switch n.Kind {
	case NumericSplit:
		return n.Numeric.Left.leaves() + n.Numeric.Right.leaves()
	case CategoricalSplit:
		total := 0
		for _, b := range n.Categorical.Branches {
			total += b.Child.leaves()
		}
		return total
	default:
		return 1
	}
}

// Rule is one root-to-leaf path.
type Rule struct {
	Conditions []string `json:"conditions"`
	Prediction string   `json:"prediction"`
	Samples    int      `json:"samples"`
}

func (r Rule) String() string {
	if len(r.Conditions) == 0 {
		return "THEN " + r.Prediction
	}
	return "IF " + strings.Join(r.Conditions, " AND ") + " THEN " + r.Prediction
}

func (n *Node) rules() []Rule {
	var out []Rule
	var walk func(node *Node, path []string)
	walk = func(node *Node, path []string) {
		switch node.Kind {
		case NumericSplit:
			thr := strconv.FormatFloat(node.Numeric.Threshold, 'g', -1, 64)
			walk(node.Numeric.Left, append(clone(path), fmt.Sprintf("%s <= %s", node.Numeric.Feature, thr)))
			walk(node.Numeric.Right, append(clone(path), fmt.Sprintf("%s > %s", node.Numeric.Feature, thr)))
		case CategoricalSplit:
			for _, b := range node.Categorical.Branches {
				cond := fmt.Sprintf("%s = %s", node.Categorical.Feature, b.Value.Text())
				if b.Value.IsMissing() {
					cond = node.Categorical.Feature + " is missing"
				}
				walk(b.Child, append(clone(path), cond))
			}
		default:
			out = append(out, Rule{Conditions: clone(path), Prediction: node.Prediction, Samples: node.Samples})
		}
	}
	walk(n, []string{})
	return out
}

func clone(s []string) []string {
	return append([]string{}, s...)
}

// Prediction is the outcome of classifying one sample.
type Prediction struct {
	Class string `json:"class"`
	// Fallback is set when a categorical value had no branch and the
	// majority class of the node reached so far was used.
	Fallback bool     `json:"fallback"`
	Path     []string `json:"path"`
}

// Predict classifies a sample given as feature name to raw text. Absent or
// empty features are treated as missing.
func (r *Result) Predict(sample map[string]string) Prediction {
	lookup := func(name string) dataset.Value {
		raw := dataset.CleanCell(sample[name])
		if raw == "" {
			return dataset.Missing()
		}
		if r.FeatureTypes[name] == dataset.Numeric {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return dataset.Missing()
			}
			return dataset.Number(f)
		}
		return dataset.String(raw)
	}

	var path []string
	node := r.Root
	for node.Kind != Leaf {
		var next *Node
		switch node.Kind {
		case NumericSplit:
			f, ok := lookup(node.Numeric.Feature).Float()
			thr := strconv.FormatFloat(node.Numeric.Threshold, 'g', -1, 64)
			if ok && f <= node.Numeric.Threshold {
				path = append(path, node.Numeric.Feature+" <= "+thr)
				next = node.Numeric.Left
			} else {
				path = append(path, node.Numeric.Feature+" > "+thr)
				next = node.Numeric.Right
			}
		case CategoricalSplit:
			v := lookup(node.Categorical.Feature)
			next = node.Categorical.branch(v)
			if next == nil {
				return Prediction{Class: node.Prediction, Fallback: true, Path: path}
			}
			path = append(path, node.Categorical.Feature+" = "+v.Text())
		}
		node = next
	}
	return Prediction{Class: node.Prediction, Path: path}
}
