package httpx

// Parent hands a request to the next content source in the chain. It
// returns false when there is none or when it did not serve the
// request either.
type Parent func(path string) (bool, error)

// ContentSource is a top-level request processor. Sources are arranged
// in a fixed chain at configuration time; each may serve the request
// itself or defer to its parent.
type ContentSource interface {
	Process(path string, x *Exchange, parent Parent) (bool, error)
}

// ContentSourceFunc adapts a function to ContentSource.
type ContentSourceFunc func(path string, x *Exchange, parent Parent) (bool, error)

func (f ContentSourceFunc) Process(path string, x *Exchange, parent Parent) (bool, error) {
	return f(path, x, parent)
}

// NewHandlerSetSource serves requests through hs and falls back to the
// parent when no handler claims them.
func NewHandlerSetSource(hs *HandlerSet) ContentSource {
	return handlerSetSource{hs}
}

type handlerSetSource struct {
	hs *HandlerSet
}

func (s handlerSetSource) Process(path string, x *Exchange, parent Parent) (bool, error) {
	ok, err := s.hs.Serve(path, x)
	if ok || err != nil {
		return ok, err
	}
	return parent(path)
}

// runChain invokes sources[0] with a parent that walks the rest of the
// list in order.
func runChain(sources []ContentSource, path string, x *Exchange) (bool, error) {
	var at func(i int) Parent
	at = func(i int) Parent {
		return func(p string) (bool, error) {
			if i >= len(sources) {
				return false, nil
			}
			return sources[i].Process(p, x, at(i+1))
		}
	}
	return at(0)(path)
}

// Layer runs before the content sources. Returning false vetoes the
// request, which then ends as 404 or 405 unless the layer assigned a
// status itself.
type Layer interface {
	Handle(path string, x *Exchange) (bool, error)
}

// LayerFunc adapts a function to Layer.
type LayerFunc func(path string, x *Exchange) (bool, error)

func (f LayerFunc) Handle(path string, x *Exchange) (bool, error) { return f(path, x) }

func runLayers(layers []Layer, path string, x *Exchange) (bool, error) {
	for _, l := range layers {
		ok, err := l.Handle(path, x)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
