// Package analysis inspects rendered audio: magnitude spectra, dominant
// partials and the nearest equal-tempered note for each.
//
// A typical check after an offline render:
//
//	samples, rate, err := analysis.ReadWAV("run.wav")
//	report := analysis.Analyze(samples, rate, 5)
//	for _, p := range report.Peaks {
//	    fmt.Println(p.Note, p.Frequency)
//	}
package analysis
