package facematch

// BestMatch finds the gallery row with the highest cosine similarity to embedding.
//
// The query is always re-normalised; gallery rows are normalised by NewGallery,
// so the similarity is a plain dot product. Ties keep the first row. The match
// succeeds when the best similarity is >= threshold; the threshold is used as
// given, without clamping. On an empty gallery the result has EmptyGallery set
// and a zero score. A query whose dimension differs from the gallery is
// refused: it never matches and scores zero. Callers that need to tell this
// apart use Gallery.CheckDim.
func BestMatch(embedding []float32, g *Gallery, threshold float64) MatchResult {
	if g.Len() == 0 {
		return MatchResult{EmptyGallery: true}
	}
	if g.CheckDim(embedding) != nil {
		return MatchResult{}
	}

	q := Normalize(embedding)

	bestIdx := 0
	bestSim := dot(q, g.vectors[0])
	for i := 1; i < len(g.vectors); i++ {
		if sim := dot(q, g.vectors[i]); sim > bestSim {
			bestIdx, bestSim = i, sim
		}
	}

	if bestSim >= threshold {
		return MatchResult{Name: g.names[bestIdx], Matched: true, Score: bestSim}
	}
	return MatchResult{Score: bestSim}
}

// dot assumes equal lengths; BestMatch checks the query dimension first.
func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
