/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

// Package sdptransform rewrites session descriptions to steer the codec
// selection and encoder settings of a negotiation engine. All functions are
// pure text transforms without shared state. They are meant to be run after an
// offer or answer was created and before it is set as local or remote
// description.
package sdptransform
