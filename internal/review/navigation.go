package review

func (s State) update(i int, fn func(*Record)) (State, error) {
	if err := s.checkIdle(); err != nil {
		return s, err
	}
	if err := s.checkIndex(i); err != nil {
		return s, err
	}
	next := s.clone()
	fn(&next.Records[i])
	return next, nil
}

func (s State) ToggleSelect(i int) (State, error) {
	return s.update(i, func(r *Record) { r.Selected = !r.Selected })
}

func (s State) MarkCompleted(i int) (State, error) {
	return s.update(i, func(r *Record) { r.Completed = true })
}

// UndoCompleted re-opens record i for editing and makes it current.
func (s State) UndoCompleted(i int) (State, error) {
	next, err := s.update(i, func(r *Record) { r.Completed = false })
	if err != nil {
		return s, err
	}
	next.CurrentID = next.Records[i].ID
	return next, nil
}

func (s State) SetCurrent(i int) (State, error) {
	if err := s.checkIdle(); err != nil {
		return s, err
	}
	if err := s.checkIndex(i); err != nil {
		return s, err
	}
	next := s.clone()
	next.CurrentID = next.Records[i].ID
	return next, nil
}

// Skip moves to the next record without completing the current one.
func (s State) Skip() (State, error) {
	if err := s.checkIdle(); err != nil {
		return s, err
	}
	i, ok := s.CurrentIndex()
	if !ok {
		return s, ErrNoCurrent
	}
	if i+1 >= len(s.Records) {
		return s, ErrLastItem
	}
	next := s.clone()
	next.CurrentID = next.Records[i+1].ID
	return next, nil
}
