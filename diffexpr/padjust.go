package diffexpr

import (
	"math"
	"sort"
	"strings"

	"github.com/carbocation/orthoexpr"
)

// PAdjustMethods lists the multiple-testing corrections Adjust understands.
// fdr is an alias for BH.
var PAdjustMethods = []string{"holm", "hochberg", "hommel", "bonferroni", "BH", "BY", "fdr", "none"}

func ParsePAdjust(name string) (string, error) {
	for _, m := range PAdjustMethods {
		if strings.EqualFold(m, name) {
			return m, nil
		}
	}
	return "", orthoexpr.Configf("diffexpr.ParsePAdjust", "unknown p-value adjustment %q; choose one of %s", name, strings.Join(PAdjustMethods, ", "))
}

// Adjust corrects p-values for multiple testing. NaN entries are left as NaN
// and do not count towards the number of tests.
func Adjust(p []float64, method string) ([]float64, error) {
	method, err := ParsePAdjust(method)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(p))
	var idx []int
	var present []float64
	for i, v := range p {
		out[i] = math.NaN()
		if !math.IsNaN(v) {
			idx = append(idx, i)
			present = append(present, v)
		}
	}

	n := len(present)
	if n <= 1 || method == "none" {
		for k, i := range idx {
			out[i] = present[k]
		}
		return out, nil
	}
	if n == 2 && method == "hommel" {
		method = "hochberg"
	}

	var adj []float64
	switch method {
	case "bonferroni":
		adj = make([]float64, n)
		for i, v := range present {
			adj[i] = math.Min(1, float64(n)*v)
		}
	case "holm":
		adj = holm(present)
	case "hochberg":
		adj = stepUp(present, func(i int) float64 { return float64(n - i + 1) })
	case "BH", "fdr":
		adj = stepUp(present, func(i int) float64 { return float64(n) / float64(i) })
	case "BY":
		var q float64
		for i := 1; i <= n; i++ {
			q += 1 / float64(i)
		}
		adj = stepUp(present, func(i int) float64 { return q * float64(n) / float64(i) })
	case "hommel":
		adj = hommel(present)
	}

	for k, i := range idx {
		out[i] = adj[k]
	}
	return out, nil
}

// ascending returns the stable ascending order of p.
func ascending(p []float64) []int {
	o := make([]int, len(p))
	for i := range o {
		o[i] = i
	}
	sort.SliceStable(o, func(a, b int) bool { return p[o[a]] < p[o[b]] })
	return o
}

func holm(p []float64) []float64 {
	n := len(p)
	o := ascending(p)
	adj := make([]float64, n)
	running := 0.0
	for k, i := range o {
		running = math.Max(running, float64(n-k)*p[i])
		adj[i] = math.Min(1, running)
	}
	return adj
}

// stepUp walks p from largest to smallest, with i the 1-based ascending rank,
// taking the running minimum of mult(i)*p.
func stepUp(p []float64, mult func(i int) float64) []float64 {
	n := len(p)
	o := ascending(p)
	adj := make([]float64, n)
	running := math.Inf(1)
	for k := n - 1; k >= 0; k-- {
		i := o[k]
		running = math.Min(running, mult(k+1)*p[i])
		adj[i] = math.Min(1, running)
	}
	return adj
}

func hommel(p []float64) []float64 {
	n := len(p)
	o := ascending(p)
	s := make([]float64, n)
	for k, i := range o {
		s[k] = p[i]
	}

	start := math.Inf(1)
	for k := 0; k < n; k++ {
		start = math.Min(start, float64(n)*s[k]/float64(k+1))
	}
	q := make([]float64, n)
	pa := make([]float64, n)
	for k := range q {
		q[k], pa[k] = start, start
	}

	for m := n - 1; m >= 2; m-- {
		// 0-based: i1 covers [0, n-m], i2 covers [n-m+1, n-1]
		q1 := math.Inf(1)
		for k, j := n-m+1, 2; k < n; k, j = k+1, j+1 {
			q1 = math.Min(q1, float64(m)*s[k]/float64(j))
		}
		for k := 0; k <= n-m; k++ {
			q[k] = math.Min(float64(m)*s[k], q1)
		}
		for k := n - m + 1; k < n; k++ {
			q[k] = q[n-m]
		}
		for k := range pa {
			pa[k] = math.Max(pa[k], q[k])
		}
	}

	adj := make([]float64, n)
	for k, i := range o {
		adj[i] = math.Max(pa[k], s[k])
	}
	return adj
}
