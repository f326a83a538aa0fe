package forecast

import "math"

// Compute runs the full ensemble described in spec.md §4.5 against a
// single blended-price history and the current book/target state.
// rngSeed makes the embedded Monte-Carlo sub-model deterministic, per
// spec.md §8 ("ForecastOutput is deterministic given fixed RNG seed and
// fixed inputs").
func Compute(in Inputs, rngSeed int64) Output {
	rf := safeLn(in.Now / safeNonZero(in.P20s))
	rs := safeLn(in.Now / safeNonZero(in.P120s))

	rsiN := (in.RSI30s - 50) / 50

	sigmaPerS := stdDev(in.LogReturns60s)
	if sigmaPerS < 1e-4 {
		sigmaPerS = 1e-4
	}

	leadBps := 0.0
	if in.Oracle != 0 {
		leadBps = 10000 * (in.Primary - in.Oracle) / in.Oracle
	}
	lead := leadBps / 10000 // normalize to the same fractional scale as rf/rs

	s := 1.8*rf + 1.2*rs + 0.6*rsiN + 0.8*lead
	z := clip(s/math.Max(2.5*sigmaPerS, 1e-6), -8, 8)
	pUp := sigmoid(z)

	var probs [numComponents]float64
	probs[TA] = pUp
	probs[LL] = clip(0.5+0.18*clip(leadBps/35, -1.5, 1.5), 0, 1)

	trend := math.Abs(rf) + math.Abs(rs)
	chop := 2.5 * sigmaPerS // choppiness proxy scaled to the same order as trend
	w := trend / (trend + chop + 1e-9)
	probs[RG] = w*pUp + (1-w)*(0.5-0.35*rsiN)

	probs[BK] = clip(0.5+0.12*((in.NoAsk-in.NoBid)-(in.YesAsk-in.YesBid)), 0, 1)

	tLeftFloor := math.Max(5, in.TLeftS)
	sigmaPrice := in.Now * sigmaPerS * math.Sqrt(tLeftFloor)
	if sigmaPrice < 1e-9 {
		sigmaPrice = 1e-9
	}
	probs[Anchor] = sigmoid((in.Now - in.Target) / sigmaPrice)

	mcHorizon := math.Min(900, math.Max(1, in.TLeftS))
	pHitTarget, pCloseAbove := monteCarloTarget(in.Now, in.Target, rf/20, sigmaPerS, mcHorizon, rngSeed)
	probs[MCClose] = pCloseAbove

	var weights [numComponents]float64
	for _, c := range []Component{TA, LL, RG, BK} {
		st := in.Stats[c]
		weights[c] = clip(0.8+0.4*float64(st.Wins+1)/float64(st.Trades+2)+0.15*math.Tanh(st.PnL/200), 0.7, 1.3)
	}
	weights[Anchor] = clip(1.9-in.TLeftS/900, 0.7, 2.2)
	weights[MCClose] = clip(2.0-in.TLeftS/900, 0.8, 2.4)

	var wSum, pwSum float64
	for c := Component(0); c < numComponents; c++ {
		wSum += weights[c]
		pwSum += weights[c] * probs[c]
	}
	pYes := 0.5
	if wSum > 0 {
		pYes = pwSum / wSum
	}
	pYes = clip(pYes, 0, 1)

	predictedSide := BuyYes
	if pYes < 0.5 {
		predictedSide = BuyNo
	}

	best := Component(0)
	bestStrength := 0.0
	consensus := 0
	for c := Component(0); c < numComponents; c++ {
		strength := math.Abs(probs[c]-0.5) * 2
		if strength > bestStrength {
			bestStrength = strength
			best = c
		}
		onPredictedSide := (predictedSide == BuyYes && probs[c] >= 0.5) ||
			(predictedSide == BuyNo && probs[c] < 0.5)
		if onPredictedSide {
			consensus++
		}
	}
	agreement := float64(consensus) / float64(numComponents)
	confidence := int(math.Round(100 * (0.6*bestStrength + 0.4*agreement)))
	confidence = clipInt(confidence, 1, 99)
	if consensus < 1 {
		consensus = 1
	}

	return Output{
		PYesEnsemble:   pYes,
		PHitTarget:     pHitTarget,
		ComponentProbs: probs,
		Weights:        weights,
		BestComponent:  best,
		PredictedSide:  predictedSide,
		Confidence:     confidence,
		Consensus:      consensus,
		SigmaPerS:      sigmaPerS,
		LeadBps:        leadBps,
	}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clipInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func safeLn(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Log(x)
}

func safeNonZero(x float64) float64 {
	if x == 0 {
		return 1e-9
	}
	return x
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs) - 1)
	return math.Sqrt(variance)
}
