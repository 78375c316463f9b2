package motorctl

// lowpass is a single-pole exponential smoother. dt is the wall-clock
// interval actually elapsed since the previous sample, so filter dynamics
// stay decoupled from scheduling jitter. dt of zero returns xold unchanged.
func lowpass(xold, xnew, tau, dt float64) float64 {
	return (dt*xnew + tau*xold) / (dt + tau)
}
